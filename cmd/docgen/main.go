// Command docgen builds the API reference guide from the @Title, @Route,
// @Description and @Response comments on the api handlers.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

type Endpoint struct {
	Title       string
	Route       string
	Description string
	Response    string
}

var (
	reTitle = regexp.MustCompile(`// @Title: (.*)`)
	reRoute = regexp.MustCompile(`// @Route: (.*)`)
	reDesc  = regexp.MustCompile(`// @Description: (.*)`)
	reResp  = regexp.MustCompile(`// @Response: (.*)`)
)

func main() {
	apiDir := flag.String("api", "internal/api", "directory holding the api handlers")
	out := flag.String("out", "internal/docs/content/api.adoc", "generated guide")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	files, err := os.ReadDir(*apiDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", *apiDir).Msg("Failed to read api directory")
	}

	var endpoints []Endpoint
	for _, file := range files {
		name := file.Name()
		if !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := os.Open(filepath.Join(*apiDir, name))
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Skipping file")
			continue
		}
		found, err := parseEndpoints(f)
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Str("file", name).Msg("Failed to scan file")
		}
		endpoints = append(endpoints, found...)
	}
	sort.SliceStable(endpoints, func(i, j int) bool {
		return routePath(endpoints[i].Route) < routePath(endpoints[j].Route)
	})

	f, err := os.Create(*out)
	if err != nil {
		log.Fatal().Err(err).Str("out", *out).Msg("Failed to create guide")
	}
	defer f.Close()
	if err := writeAsciiDoc(f, endpoints); err != nil {
		log.Fatal().Err(err).Msg("Failed to write guide")
	}
	log.Info().Int("endpoints", len(endpoints)).Str("out", *out).Msg("Generated API reference")
}

// parseEndpoints collects every complete comment block. A block ends at
// its @Response line.
func parseEndpoints(r io.Reader) ([]Endpoint, error) {
	var endpoints []Endpoint
	var current Endpoint

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if match := reTitle.FindStringSubmatch(line); len(match) > 1 {
			current.Title = strings.TrimSpace(match[1])
		}
		if match := reRoute.FindStringSubmatch(line); len(match) > 1 {
			current.Route = strings.TrimSpace(match[1])
		}
		if match := reDesc.FindStringSubmatch(line); len(match) > 1 {
			current.Description = strings.TrimSpace(match[1])
		}
		if match := reResp.FindStringSubmatch(line); len(match) > 1 {
			current.Response = strings.TrimSpace(match[1])
			if current.Title != "" && current.Route != "" {
				endpoints = append(endpoints, current)
			}
			current = Endpoint{}
		}
	}
	return endpoints, scanner.Err()
}

func routePath(route string) string {
	if i := strings.IndexByte(route, ' '); i >= 0 {
		return route[i+1:]
	}
	return route
}

func writeAsciiDoc(w io.Writer, endpoints []Endpoint) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "= API Reference")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Generated from the handler comments by `docgen`. Do not edit.")
	fmt.Fprintln(bw)
	fmt.Fprintln(bw, "Failed operations answer with `{\"error\", \"kind\", \"state\"}`. Busy or unavailable actions return 409.")

	for _, ep := range endpoints {
		fmt.Fprintln(bw)
		fmt.Fprintf(bw, "== %s\n\n", ep.Title)
		fmt.Fprintf(bw, "`%s`\n\n", ep.Route)
		if ep.Description != "" {
			fmt.Fprintf(bw, "%s\n\n", ep.Description)
		}
		fmt.Fprintf(bw, "Response: `%s`\n", strings.ReplaceAll(ep.Response, "`", "'"))
	}
	return bw.Flush()
}
