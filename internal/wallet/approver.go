package wallet

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Approver stands in for the provider's approval prompt.
type Approver interface {
	ApproveConnect(ctx context.Context, address string) (bool, error)
	ApproveSign(address string, message []byte) (bool, error)
}

// StaticApprover answers every prompt the same way.
type StaticApprover struct {
	Connect bool
	Sign    bool
}

// AutoApprover approves everything. Used for unattended runs.
var AutoApprover = StaticApprover{Connect: true, Sign: true}

func (s StaticApprover) ApproveConnect(context.Context, string) (bool, error) { return s.Connect, nil }

func (s StaticApprover) ApproveSign(string, []byte) (bool, error) { return s.Sign, nil }

// PromptApprover asks on a terminal. Only "y" and "yes" approve.
type PromptApprover struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

// NewPromptApprover reads answers from in and writes prompts to out.
func NewPromptApprover(in io.Reader, out io.Writer) *PromptApprover {
	return &PromptApprover{in: bufio.NewReader(in), out: out}
}

func (p *PromptApprover) ApproveConnect(ctx context.Context, address string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.ask(fmt.Sprintf("Allow archwall to connect to wallet %s? [y/N] ", address))
}

func (p *PromptApprover) ApproveSign(address string, message []byte) (bool, error) {
	sum := sha256.Sum256(message)
	return p.ask(fmt.Sprintf("Sign transaction %s with wallet %s? [y/N] ", hex.EncodeToString(sum[:8]), address))
}

func (p *PromptApprover) ask(question string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := io.WriteString(p.out, question); err != nil {
		return false, err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
