package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vasilisp/searchai/pkg/api"
)

const defaultPort = 5000

func readQuery(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	input, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read from stdin: %w", err)
	}
	return strings.TrimSpace(string(input)), nil
}

func search(client *http.Client, baseURL string, query string) (*api.SearchResponse, error) {
	target := baseURL + api.SearchAPIPath + "?" + url.Values{"q": {query}}.Encode()

	resp, err := client.Get(target)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get response: %s", resp.Status)
	}

	var result api.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

func printResponse(w io.Writer, resp *api.SearchResponse) {
	fmt.Fprintf(w, "# %s\n\n%s\n\n", resp.Query, resp.Results)

	if resp.Summary != nil {
		fmt.Fprintf(w, "## Summary (%s confidence)\n\n%s\n\n", resp.Summary.SourceConfidence, resp.Summary.Summary)
		for _, fact := range resp.Summary.Facts {
			fmt.Fprintf(w, "- %s\n", fact)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "## Summary\n\n%s\n\n", resp.SummaryRaw)
	}

	fmt.Fprintf(w, "Official site: %s\n", resp.Domain)
}

func port() int {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
	}
	return defaultPort
}

func Main(args []string) {
	query, err := readQuery(args, os.Stdin)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read query")
	}
	if query == "" {
		log.Fatal().Msg("empty query")
	}

	resp, err := search(http.DefaultClient, fmt.Sprintf("http://localhost:%d", port()), query)
	if err != nil {
		log.Fatal().Err(err).Str("query", query).Msg("search failed")
	}

	printResponse(os.Stdout, resp)
}
