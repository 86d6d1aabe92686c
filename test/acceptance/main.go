// Acceptance checks against a running server. Start it with
// QUERY_ENGINE_MOCK=true and AUTH_TOKEN matching ACCEPTANCE_TOKEN.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	concurrentRequests = 20
	maxDuration        = 1 * time.Second
)

var (
	mcpURL    = getEnv("ACCEPTANCE_MCP_URL", "http://localhost:8080")
	apiURL    = getEnv("ACCEPTANCE_API_URL", "http://localhost:8081")
	authToken = getEnv("ACCEPTANCE_TOKEN", "your-secret-token")
	client    = &http.Client{Timeout: 30 * time.Second}
)

var carnyLabel = []string{
	"Analytische Bestandteile:",
	"Rohprotein 11,5 %, Rohfett 6,0 %,",
	"Rohfaser 0,5 %, Rohasche 2,0 %, Feuchtigkeit 78 %",
}

type MCPRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type CallToolParams struct {
	Name      string      `json:"name"`
	Arguments interface{} `json:"arguments,omitempty"`
}

type check struct {
	name string
	run  func() error
}

func main() {
	fmt.Printf("🧪 Pet food nutrition server acceptance checks\n")
	fmt.Printf("MCP: %s  API: %s\n\n", mcpURL, apiURL)

	checks := []check{
		{"MCP health endpoint (no auth)", func() error { return expectStatus(mcpURL+"/health", "", http.StatusOK) }},
		{"API health endpoint (no auth)", func() error { return expectStatus(apiURL+"/health", "", http.StatusOK) }},
		{"MCP rejects missing token", func() error { return expectMCPStatus("", http.StatusUnauthorized) }},
		{"MCP rejects wrong token", func() error { return expectMCPStatus("wrong-token", http.StatusUnauthorized) }},
		{"API rejects missing token", func() error { return expectStatus(apiURL+"/v1/products/4017721837194", "", http.StatusUnauthorized) }},
		{"MCP parse_nutrition_label", testParseTool},
		{"API analyze", testAnalyze},
		{"API barcode lookup", testLookup},
		{"API analyze under concurrent load", testLoad},
	}

	for i, c := range checks {
		fmt.Printf("%d. %s...\n", i+1, c.name)
		if err := c.run(); err != nil {
			fmt.Printf("❌ %s failed: %v\n", c.name, err)
			os.Exit(1)
		}
		fmt.Printf("✅ passed\n\n")
	}

	fmt.Printf("🎉 All acceptance checks passed!\n")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func do(method, url, token string, body interface{}) (*http.Response, []byte, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp, data, err
}

func expectStatus(url, token string, want int) error {
	resp, _, err := do(http.MethodGet, url, token, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("expected status %d, got %d", want, resp.StatusCode)
	}
	return nil
}

func expectMCPStatus(token string, want int) error {
	resp, _, err := do(http.MethodPost, mcpURL+"/mcp", token, MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("expected status %d, got %d", want, resp.StatusCode)
	}
	return nil
}

// jsonPayload strips an SSE "data:" framing if the server streamed the reply.
func jsonPayload(data []byte) []byte {
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			return []byte(strings.TrimSpace(rest))
		}
	}
	return data
}

func testParseTool() error {
	req := MCPRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params: CallToolParams{
			Name:      "parse_nutrition_label",
			Arguments: map[string]interface{}{"lines": carnyLabel},
		},
	}
	resp, data, err := do(http.MethodPost, mcpURL+"/mcp", authToken, req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}

	var reply struct {
		Result struct {
			IsError           bool                   `json:"isError"`
			StructuredContent map[string]interface{} `json:"structuredContent"`
		} `json:"result"`
	}
	if err := json.Unmarshal(jsonPayload(data), &reply); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if reply.Result.IsError {
		return fmt.Errorf("tool returned an error: %s", data)
	}
	return checkCarbs(reply.Result.StructuredContent)
}

func checkCarbs(report map[string]interface{}) error {
	metrics, ok := report["metrics"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("report has no metrics: %v", report)
	}
	if carbs, _ := metrics["carbs_percent"].(float64); carbs != 9.09 {
		return fmt.Errorf("expected 9.09%% carbs on dry matter, got %v", metrics["carbs_percent"])
	}
	return nil
}

func testAnalyze() error {
	resp, data, err := do(http.MethodPost, apiURL+"/v1/analyze", authToken, map[string]interface{}{"lines": carnyLabel})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}
	var report map[string]interface{}
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return checkCarbs(report)
}

func testLookup() error {
	resp, data, err := do(http.MethodGet, apiURL+"/v1/products/4017721837194", authToken, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}
	if !bytes.Contains(data, []byte(`"found":true`)) {
		return fmt.Errorf("product not found: %s", data)
	}
	return nil
}

func testLoad() error {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		slowest time.Duration
		errs    []error
	)

	for i := 0; i < concurrentRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			resp, _, err := do(http.MethodPost, apiURL+"/v1/analyze", authToken, map[string]interface{}{"lines": carnyLabel})
			elapsed := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			slowest = max(slowest, elapsed)
			switch {
			case err != nil:
				errs = append(errs, err)
			case resp.StatusCode == http.StatusTooManyRequests:
				// rate limiting is an acceptable answer under load
			case resp.StatusCode != http.StatusOK:
				errs = append(errs, fmt.Errorf("status %d", resp.StatusCode))
			}
		}()
	}
	wg.Wait()

	fmt.Printf("   %d requests, slowest %v\n", concurrentRequests, slowest)
	if len(errs) > 0 {
		return fmt.Errorf("%d requests failed, first: %w", len(errs), errs[0])
	}
	if slowest > maxDuration {
		return fmt.Errorf("slowest request took %v, limit %v", slowest, maxDuration)
	}
	return nil
}
