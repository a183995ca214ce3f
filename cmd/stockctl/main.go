// stockctl drives a running stockd from the command line.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	stockctl products [-group ID] [-deleted] [-refresh]
//	stockctl count -id ID [-counted N] [-added N] [-waste N]
//	stockctl price -id ID [-price X] [-cost X]
//	stockctl apply [-id ID]
//	stockctl session start|end|show|clear|export [-o FILE]
//
// Examples:
//
//	stockctl session start
//	stockctl count -id 60 -counted 24 -waste 2
//	stockctl price -id 60 -price 2.50
//	stockctl apply -operator alice
//	stockctl session export -o count.xlsx
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"gizmo-stock/internal/operator"
)

var client = &http.Client{Timeout: 5 * time.Minute}

// Global flags (apply to all commands)
var (
	serverURL    string
	quiet        bool
	noColor      bool
	verbose      bool
	operatorName string
	stationID    string
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "products":
		runProducts(args)
	case "count":
		runCount(args)
	case "price":
		runPrice(args)
	case "apply":
		runApply(args)
	case "session":
		runSession(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `stockctl - Gizmo stock counting client

Usage:
  stockctl <command> [options]

Commands:
  products  List products with stock, price and cost
  count     Record a counted value, addition or waste for a product
  price     Record a new price or cost for a product
  apply     Push pending edits to the POS
  session   Manage the counting session: start, end, show, clear, export

Examples:
  stockctl session start
  stockctl count -id 60 -counted 24 -waste 2
  stockctl price -id 60 -price 2.50 -cost 1.10
  stockctl apply -operator alice
  stockctl session export -o count.xlsx

Run 'stockctl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags every command shares.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", envOr("STOCKD_URL", "http://localhost:8080"), "stockd base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - minimal output")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.StringVar(&operatorName, "operator", os.Getenv("STOCK_OPERATOR"), "Operator name recorded on price and cost changes")
	fs.StringVar(&stationID, "station", "", "Station ID (defaults to the server's)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: stockctl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	if noColor {
		disableColors()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// =============================================================================
// PRODUCTS COMMAND
// =============================================================================

type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

func runProducts(args []string) {
	fs := newFlagSet("products", "products [options]")
	var groups multiFlag
	var deleted, refresh bool
	fs.Var(&groups, "group", "Product group ID (repeatable)")
	fs.BoolVar(&deleted, "deleted", false, "Include deleted products")
	fs.BoolVar(&refresh, "refresh", false, "Bypass the server's product cache")
	parse(fs, args)

	q := url.Values{}
	for _, g := range groups {
		q.Add("group", g)
	}
	if deleted {
		q.Set("deleted", "true")
	}
	if refresh {
		q.Set("refresh", "true")
	}

	var resp struct {
		Products []struct {
			ID      string   `json:"id"`
			Name    string   `json:"name"`
			Barcode string   `json:"barcode"`
			Stock   int      `json:"stock"`
			Price   *float64 `json:"price"`
			Cost    *float64 `json:"cost"`
		} `json:"products"`
		Count int `json:"count"`
	}
	path := "/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	if err := doRequest("GET", path, nil, &resp); err != nil {
		fatal("Failed to list products: %v", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if !quiet {
		fmt.Fprintf(tw, "%sID\tNAME\tBARCODE\tSTOCK\tPRICE\tCOST%s\n", colorBold, colorReset)
	}
	for _, p := range resp.Products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", p.ID, p.Name, p.Barcode, p.Stock, money(p.Price), money(p.Cost))
	}
	tw.Flush()
	printInfo("%d product(s)", resp.Count)
}

// =============================================================================
// EDIT COMMANDS
// =============================================================================

func runCount(args []string) {
	fs := newFlagSet("count", "count -id ID [-counted N] [-added N] [-waste N]")
	var id, counted, added, waste string
	fs.StringVar(&id, "id", "", "Product ID (required)")
	fs.StringVar(&counted, "counted", "", "Absolute counted stock")
	fs.StringVar(&added, "added", "", "Stock delta, may be negative")
	fs.StringVar(&waste, "waste", "", "Units written off")
	parse(fs, args)

	if id == "" || (counted == "" && added == "" && waste == "") {
		fs.Usage()
		os.Exit(1)
	}
	setEdit(id, map[string]any{
		"countedValue": numberOrNil(counted),
		"addedValue":   numberOrNil(added),
		"wasteValue":   numberOrNil(waste),
	})
}

func runPrice(args []string) {
	fs := newFlagSet("price", "price -id ID [-price X] [-cost X]")
	var id, price, cost string
	fs.StringVar(&id, "id", "", "Product ID (required)")
	fs.StringVar(&price, "price", "", "New price")
	fs.StringVar(&cost, "cost", "", "New cost")
	parse(fs, args)

	if id == "" || (price == "" && cost == "") {
		fs.Usage()
		os.Exit(1)
	}
	setEdit(id, map[string]any{
		"pendingPrice": numberOrNil(price),
		"pendingCost":  numberOrNil(cost),
	})
}

// numberOrNil passes numbers through as JSON numbers and anything else as
// the raw string, letting the server decide what is valid.
func numberOrNil(s string) any {
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func setEdit(id string, body map[string]any) {
	for k, v := range body {
		if v == nil {
			delete(body, k)
		}
	}

	var view map[string]any
	if err := doRequest("PUT", "/edits/"+url.PathEscape(id), body, &view); err != nil {
		fatal("Failed to record edit: %v", err)
	}

	printSuccess("Pending edit for %s", id)
	if quiet {
		return
	}
	for _, k := range []string{"countedValue", "addedValue", "wasteValue", "pendingPrice", "pendingCost", "pendingBarcode", "pendingName"} {
		if v := view[k]; v != nil {
			fmt.Printf("  %s: %s%v%s\n", k, colorCyan, v, colorReset)
		}
	}
}

// =============================================================================
// APPLY COMMAND
// =============================================================================

func runApply(args []string) {
	fs := newFlagSet("apply", "apply [-id ID]")
	var id string
	fs.StringVar(&id, "id", "", "Apply only this product's edit")
	parse(fs, args)

	path := "/apply"
	if id != "" {
		path = "/edits/" + url.PathEscape(id) + "/apply"
	}

	var summary struct {
		Message    string `json:"message"`
		Failed     int    `json:"failed"`
		AllFailed  bool   `json:"allFailed"`
		Categories []struct {
			Category  string `json:"category"`
			Succeeded int    `json:"succeeded"`
			Failed    int    `json:"failed"`
		} `json:"categories"`
	}
	// A fully failed apply is a 502 whose body is still a summary.
	err := doRequest("POST", path, nil, &summary)
	if err != nil && !summary.AllFailed {
		fatal("Failed to apply edits: %v", err)
	}

	switch {
	case summary.AllFailed:
		printError("%s", summary.Message)
	case summary.Failed > 0:
		printWarning("%s", summary.Message)
	default:
		printSuccess("%s", summary.Message)
	}
	if quiet {
		return
	}
	for _, c := range summary.Categories {
		color := colorGreen
		if c.Failed > 0 {
			color = colorRed
		}
		fmt.Printf("  %-8s %s%d/%d%s\n", c.Category, color, c.Succeeded, c.Succeeded+c.Failed, colorReset)
	}
	if summary.AllFailed {
		os.Exit(1)
	}
}

// =============================================================================
// SESSION COMMAND
// =============================================================================

func runSession(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: stockctl session start|end|show|clear|export [options]\n")
		os.Exit(1)
	}
	sub, args := args[0], args[1:]

	fs := newFlagSet("session "+sub, "session "+sub+" [options]")
	var out string
	if sub == "export" {
		fs.StringVar(&out, "o", "", "Output file (defaults to the server's suggested name)")
	}
	parse(fs, args)

	var sess sessionView
	switch sub {
	case "start":
		if err := doRequest("POST", "/session", nil, &sess); err != nil {
			fatal("Failed to start session: %v", err)
		}
		printSuccess("Counting session started")
	case "end":
		if err := doRequest("POST", "/session/end", nil, &sess); err != nil {
			fatal("Failed to end session: %v", err)
		}
		printSuccess("Counting session completed")
	case "show":
		if err := doRequest("GET", "/session", nil, &sess); err != nil {
			fatal("Failed to get session: %v", err)
		}
	case "clear":
		if err := doRequest("DELETE", "/session", nil, nil); err != nil {
			fatal("Failed to clear session: %v", err)
		}
		printSuccess("Counting session cleared")
		return
	case "export":
		runExport(out)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown session command: %s\n", sub)
		os.Exit(1)
	}
	printSession(sess)
}

type sessionView struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt"`
	TotalChanges  int        `json:"totalChanges"`
	TotalProducts int        `json:"totalProducts"`
	Changes       []struct {
		ProductName string `json:"productName"`
		Reason      string `json:"reason"`
		ChangeValue int    `json:"changeValue"`
		FinalCount  int    `json:"finalCount"`
	} `json:"changes"`
}

func printSession(s sessionView) {
	if quiet {
		fmt.Println(s.Status)
		return
	}
	fmt.Printf("  Status: %s%s%s\n", colorCyan, s.Status, colorReset)
	if s.ID == "" {
		return
	}
	fmt.Printf("  ID: %s\n", s.ID)
	fmt.Printf("  Started: %s\n", s.StartedAt.Local().Format(time.DateTime))
	if s.EndedAt != nil {
		fmt.Printf("  Ended: %s\n", s.EndedAt.Local().Format(time.DateTime))
	}
	fmt.Printf("  Changes: %d across %d product(s)\n", s.TotalChanges, s.TotalProducts)
	for _, c := range s.Changes {
		fmt.Printf("    %s%-24s%s %-16s %+d → %d\n", colorGray, c.ProductName, colorReset, c.Reason, c.ChangeValue, c.FinalCount)
	}
}

func runExport(out string) {
	req, err := newRequest("GET", "/session/export", nil)
	if err != nil {
		fatal("Failed to export session: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		fatal("Failed to export session: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		fatal("Failed to export session: HTTP %d: %s", resp.StatusCode, string(body))
	}

	if out == "" {
		out = "counting-session.xlsx"
		if cd := resp.Header.Get("Content-Disposition"); cd != "" {
			if _, after, ok := strings.Cut(cd, `filename="`); ok {
				out = strings.TrimSuffix(after, `"`)
			}
		}
	}

	f, err := os.Create(out)
	if err != nil {
		fatal("Failed to create %s: %v", out, err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fatal("Failed to write %s: %v", out, err)
	}
	printSuccess("Wrote %s (%d bytes)", out, n)
	if quiet {
		fmt.Println(out)
	}
}

// =============================================================================
// HTTP
// =============================================================================

func newRequest(method, path string, body []byte) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, strings.TrimSuffix(serverURL, "/")+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	op := operator.Operator{Name: operatorName, Station: stationID}
	if !op.IsZero() {
		h, err := op.Header()
		if err != nil {
			return nil, fmt.Errorf("encoding operator: %w", err)
		}
		req.Header.Set(operator.Header, h)
	}
	return req, nil
}

// doRequest sends a JSON request and decodes the response into out. On an
// HTTP error the body is still decoded into out when it is JSON.
func doRequest(method, path string, body, out any) error {
	var reqJSON []byte
	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	req, err := newRequest(method, path, reqJSON)
	if err != nil {
		return err
	}

	if verbose {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil && resp.StatusCode < 400 {
			return fmt.Errorf("parsing response: %w", err)
		}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorMessage(respBody))
	}
	return nil
}

// errorMessage pulls the message out of an {"error": {...}} body.
func errorMessage(body []byte) string {
	var e struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Code + ": " + e.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...any) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...any) {
	fmt.Printf("%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Printf("%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
	}
}

func money(v *float64) string {
	if v == nil {
		return "-"
	}
	return decimal.NewFromFloat(*v).StringFixed(2)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
