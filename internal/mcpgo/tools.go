package mcpgo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/noot-app/petfood-nutrition-server/internal/analysis"
	"github.com/noot-app/petfood-nutrition-server/internal/label"
	"github.com/noot-app/petfood-nutrition-server/internal/nutrition"
	appserver "github.com/noot-app/petfood-nutrition-server/internal/server"
	"github.com/noot-app/petfood-nutrition-server/internal/session"
	"github.com/noot-app/petfood-nutrition-server/internal/types"
)

const (
	defaultSearchLimit = 3
	maxSearchLimit     = 10
)

// SearchProductsResponse represents the response from search_products_by_brand_and_name
type SearchProductsResponse struct {
	Found    bool                   `json:"found"`
	Count    int                    `json:"count"`
	Products []types.ProductSummary `json:"products"`
}

func foodTypeOption() mcp.ToolOption {
	return mcp.WithString("food_type",
		mcp.Description("Food type when known. Omit to infer it from the product and the moisture value."),
		mcp.Enum(string(nutrition.FoodTypeWet), string(nutrition.FoodTypeDry)),
	)
}

func (s *Server) addTools() {
	parseTool := mcp.NewTool("parse_nutrition_label",
		mcp.WithDescription("Extract protein, fat, fiber, moisture and ash percentages from the OCR text of a pet food label, then validate them and compute carbohydrates and calories. Pass either 'lines' or 'text'."),
		mcp.WithArray("lines",
			mcp.WithStringItems(),
			mcp.Description("OCR text lines of the guaranteed analysis section."),
		),
		mcp.WithString("text",
			mcp.Description("OCR text as one string, lines separated by newlines."),
		),
		mcp.WithString("product_name", mcp.Description("Product name, used to infer wet or dry food.")),
		mcp.WithString("brand", mcp.Description("Brand, used to infer wet or dry food.")),
		foodTypeOption(),
		mcp.WithOutputSchema[analysis.Report](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(parseTool, s.handleParseLabel)

	carbsTool := mcp.NewTool("calculate_carbs",
		mcp.WithDescription("Calculate carbohydrates (100 minus protein, fat, fiber, moisture and ash), the carbohydrate tier and calories per 100 g."),
		mcp.WithNumber("protein", mcp.Required(), mcp.Min(0), mcp.Max(100), mcp.Description("Crude protein percentage")),
		mcp.WithNumber("fat", mcp.Required(), mcp.Min(0), mcp.Max(100), mcp.Description("Crude fat percentage")),
		mcp.WithNumber("fiber", mcp.Required(), mcp.Min(0), mcp.Max(100), mcp.Description("Crude fiber percentage")),
		mcp.WithNumber("moisture", mcp.Required(), mcp.Min(0), mcp.Max(100), mcp.Description("Moisture percentage")),
		mcp.WithNumber("ash", mcp.Required(), mcp.Min(0), mcp.Max(100), mcp.Description("Crude ash percentage")),
		foodTypeOption(),
		mcp.WithOutputSchema[analysis.Report](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(carbsTool, s.handleCalculateCarbs)

	barcodeTool := mcp.NewTool("lookup_product_by_barcode",
		mcp.WithDescription("Look up a pet food product by barcode (UPC/EAN), first in locally saved products, then in the Open Pet Food Facts catalog."),
		mcp.WithString("barcode",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("The barcode (UPC/EAN) to look up"),
		),
		mcp.WithOutputSchema[appserver.ProductResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(barcodeTool, s.handleLookupBarcode)

	searchTool := mcp.NewTool("search_products_by_brand_and_name",
		mcp.WithDescription("Search the Open Pet Food Facts catalog by brand and product name. Both must be non-empty."),
		mcp.WithString("name",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Product name to search for."),
		),
		mcp.WithString("brand",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Brand name to search for."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 3, max: 10)"),
			mcp.DefaultNumber(defaultSearchLimit),
			mcp.Min(1),
			mcp.Max(maxSearchLimit),
		),
		mcp.WithOutputSchema[SearchProductsResponse](),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(searchTool, s.handleSearchProducts)

	reconcileTool := mcp.NewTool("reconcile_label_with_product",
		mcp.WithDescription("Merge label OCR text with the stored or catalog record of a product. Scanned values replace the record only when they clearly improve on it; other disagreements are reported as conflicts."),
		mcp.WithString("barcode",
			mcp.Required(),
			mcp.MinLength(1),
			mcp.Description("Barcode of the product"),
		),
		mcp.WithArray("lines",
			mcp.Required(),
			mcp.WithStringItems(),
			mcp.Description("OCR text lines of the label"),
		),
		mcp.WithObject("overrides",
			mcp.Description("Manual values by nutrient name, e.g. {\"ash\": 2.5}. They always win."),
		),
		foodTypeOption(),
		mcp.WithOutputSchema[appserver.ReconcileResponse](),
	)
	s.mcpServer.AddTool(reconcileTool, s.handleReconcile)

	startTool := mcp.NewTool("start_scan_session",
		mcp.WithDescription("Start a multi-frame label scan. Frames are added with add_scan_frame and the consensus is saved with finish_scan_session."),
		mcp.WithString("barcode", mcp.Description("Barcode of the scanned product, if known")),
		mcp.WithOutputSchema[session.Info](),
	)
	s.mcpServer.AddTool(startTool, s.handleStartScan)

	frameTool := mcp.NewTool("add_scan_frame",
		mcp.WithDescription("Add the OCR text of one camera frame to a scan session and return the values agreed on so far."),
		mcp.WithString("session_id", mcp.Required(), mcp.MinLength(1), mcp.Description("Scan session ID")),
		mcp.WithArray("lines", mcp.Required(), mcp.WithStringItems(), mcp.Description("OCR text lines of the frame")),
		mcp.WithOutputSchema[session.Progress](),
	)
	s.mcpServer.AddTool(frameTool, s.handleAddFrame)

	finishTool := mcp.NewTool("finish_scan_session",
		mcp.WithDescription("Finish a scan session: resolve the frame consensus, merge it with the product record and save the result."),
		mcp.WithString("session_id", mcp.Required(), mcp.MinLength(1), mcp.Description("Scan session ID")),
		mcp.WithObject("overrides",
			mcp.Description("Manual values by nutrient name, e.g. {\"fiber\": 0.5}"),
		),
		mcp.WithOutputSchema[session.Outcome](),
	)
	s.mcpServer.AddTool(finishTool, s.handleFinishScan)
}

// textLines reads 'lines' and falls back to splitting 'text'.
func textLines(request mcp.CallToolRequest) []string {
	lines := request.GetStringSlice("lines", nil)
	if len(lines) == 0 {
		if text := request.GetString("text", ""); text != "" {
			lines = strings.Split(text, "\n")
		}
	}
	return lines
}

func foodType(request mcp.CallToolRequest) nutrition.FoodType {
	return nutrition.FoodType(strings.ToLower(request.GetString("food_type", "")))
}

// overrides reads the optional 'overrides' object.
func overrides(request mcp.CallToolRequest) (map[nutrition.Nutrient]float64, error) {
	raw, ok := request.GetArguments()["overrides"]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.New("overrides must be an object of nutrient name to percentage")
	}

	values := make(map[string]float64, len(obj))
	for name, v := range obj {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("override for %s must be a number", name)
		}
		values[name] = f
	}
	return session.ParseOverrides(values)
}

func (s *Server) handleParseLabel(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleParseLabel: Starting tool call", "arguments", request.GetArguments())

	lines := textLines(request)
	if len(lines) == 0 {
		s.log.Warn("handleParseLabel: No label text")
		return mcp.NewToolResultError("Provide the label text as 'lines' or 'text'"), nil
	}

	hints := analysis.Hints{
		ProductName: request.GetString("product_name", ""),
		Brand:       request.GetString("brand", ""),
	}
	profile := label.Extract(lines)
	report := s.rt.Analyzer.AnalyzeProfileAs(profile, hints, foodType(request))
	report.Matches = label.Scan(lines)

	s.log.Debug("handleParseLabel: Label parsed",
		"lines", len(lines),
		"detected", len(report.Matches),
		"complete", report.Complete())

	return s.structured("parse_nutrition_label", report)
}

func (s *Server) handleCalculateCarbs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleCalculateCarbs: Starting tool call", "arguments", request.GetArguments())

	var profile nutrition.Profile
	for _, n := range nutrition.AllNutrients() {
		v, err := request.RequireFloat(n.String())
		if err != nil {
			s.log.Warn("handleCalculateCarbs: Missing parameter", "nutrient", n, "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter '%s': %v", n, err)), nil
		}
		if v < 0 || v > 100 {
			return mcp.NewToolResultError(fmt.Sprintf("Parameter '%s' must be between 0 and 100", n)), nil
		}
		profile.Set(n, v)
	}

	report := s.rt.Analyzer.AnalyzeProfileAs(profile, analysis.Hints{}, foodType(request))
	return s.structured("calculate_carbs", report)
}

func (s *Server) handleLookupBarcode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleLookupBarcode: Starting tool call", "arguments", request.GetArguments())

	barcode, err := request.RequireString("barcode")
	if err != nil {
		s.log.Warn("handleLookupBarcode: Missing 'barcode' parameter", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'barcode': %v", err)), nil
	}

	base, err := s.rt.Sessions.Lookup(ctx, barcode)
	if err != nil {
		s.log.Error("Barcode lookup failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Barcode lookup failed: %v", err)), nil
	}

	response := appserver.ProductResponse{Found: base.Source != session.BaselineNone}
	if response.Found {
		report := s.rt.Analyzer.AnalyzeProfile(base.Profile, base.Hints())
		response.Product = base
		response.Report = &report
	}

	s.log.Debug("handleLookupBarcode: Lookup finished", "found", response.Found, "source", base.Source)
	return s.structured("lookup_product_by_barcode", response)
}

func (s *Server) handleSearchProducts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleSearchProducts: Starting tool call", "arguments", request.GetArguments())

	name, err := request.RequireString("name")
	if err != nil {
		s.log.Warn("handleSearchProducts: Missing 'name' parameter", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'name': %v", err)), nil
	}
	brand, err := request.RequireString("brand")
	if err != nil {
		s.log.Warn("handleSearchProducts: Missing 'brand' parameter", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'brand': %v", err)), nil
	}
	if len(name) < 1 || len(brand) < 1 {
		return mcp.NewToolResultError("Parameters 'name' and 'brand' must be at least 1 character long"), nil
	}

	limit := int(request.GetFloat("limit", defaultSearchLimit))
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	products, err := s.rt.Catalog.SearchProductsByBrandAndName(ctx, name, brand, limit)
	if err != nil {
		s.log.Error("Product search failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Search failed: %v", err)), nil
	}

	summaries := make([]types.ProductSummary, 0, len(products))
	for _, p := range products {
		summaries = append(summaries, p.ToSummary())
	}

	response := SearchProductsResponse{
		Found:    len(summaries) > 0,
		Count:    len(summaries),
		Products: summaries,
	}
	return s.structured("search_products_by_brand_and_name", response)
}

func (s *Server) handleReconcile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleReconcile: Starting tool call", "arguments", request.GetArguments())

	barcode, err := request.RequireString("barcode")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'barcode': %v", err)), nil
	}
	lines, err := request.RequireStringSlice("lines")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'lines': %v", err)), nil
	}
	manual, err := overrides(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	base, record, err := s.rt.Sessions.Reconcile(ctx, barcode, label.Extract(lines), foodType(request), manual)
	if err != nil {
		s.log.Error("Reconcile failed", "error", err, "barcode", barcode)
		return mcp.NewToolResultError(fmt.Sprintf("Reconcile failed: %v", err)), nil
	}

	return s.structured("reconcile_label_with_product", appserver.NewReconcileResponse(s.rt.Analyzer, base, record))
}

func (s *Server) handleStartScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	barcode := strings.TrimSpace(request.GetString("barcode", ""))

	info, err := s.rt.Sessions.Start(ctx, barcode)
	if err != nil {
		s.log.Error("Failed to start scan session", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start scan session: %v", err)), nil
	}
	return s.structured("start_scan_session", info)
}

func (s *Server) handleAddFrame(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'session_id': %v", err)), nil
	}
	lines, err := request.RequireStringSlice("lines")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'lines': %v", err)), nil
	}

	progress, err := s.rt.Sessions.AddFrame(ctx, id, lines)
	if err != nil {
		s.log.Warn("Failed to add scan frame", "session_id", id, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to add frame: %v", err)), nil
	}
	return s.structured("add_scan_frame", progress)
}

func (s *Server) handleFinishScan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Missing required parameter 'session_id': %v", err)), nil
	}
	manual, err := overrides(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	outcome, err := s.rt.Sessions.Finish(ctx, id, manual)
	if err != nil {
		s.log.Warn("Failed to finish scan session", "session_id", id, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("Failed to finish session: %v", err)), nil
	}
	return s.structured("finish_scan_session", outcome)
}
