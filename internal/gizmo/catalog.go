package gizmo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"gizmo-stock/internal/extract"
	"gizmo-stock/internal/model"
	"gizmo-stock/internal/retry"
)

type listResult struct {
	Data       []map[string]any `json:"data"`
	TotalCount *int             `json:"totalCount"`
}

// ListProducts fetches products matching q.
func (c *Client) ListProducts(ctx context.Context, q model.ProductQuery) (*model.ProductPage, error) {
	query := url.Values{}
	if !q.IncludeDeleted {
		query.Set("IsDeleted", "false")
	}
	for k, vs := range c.baseParams {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	query.Set("Pagination.Limit", strconv.Itoa(orDefault(q.Limit, c.pageLimit)))
	for _, id := range q.GroupIDs {
		query.Add("ProductGroupId", id)
	}

	page, err := retry.DoWithData(ctx, func(ctx context.Context) (*model.ProductPage, error) {
		body, err := c.do(ctx, "GET", c.productsEndpoint, query, nil)
		if err != nil {
			return nil, err
		}
		var list listResult
		if err := decodeResult(body, &list); err != nil {
			return nil, model.NewProtocolError(c.productsEndpoint, err.Error())
		}

		page := &model.ProductPage{Products: make([]model.Product, 0, len(list.Data))}
		for _, raw := range list.Data {
			page.Products = append(page.Products, extract.Product(raw, c.baseURL))
		}
		page.TotalCount = len(page.Products)
		if list.TotalCount != nil {
			page.TotalCount = *list.TotalCount
		}
		return page, nil
	}, c.retryOptions(CategoryCatalog))
	if err != nil {
		c.logFailure(ctx, CategoryCatalog, "listing products failed", err)
		return nil, err
	}

	c.logger.Debug("products listed",
		slog.String("category", CategoryCatalog),
		slog.Int("count", len(page.Products)),
		slog.Int("total", page.TotalCount),
	)
	return page, nil
}

// ListGroups fetches product groups, dropping deleted ones.
func (c *Client) ListGroups(ctx context.Context) ([]model.ProductGroup, error) {
	groups, err := retry.DoWithData(ctx, func(ctx context.Context) ([]model.ProductGroup, error) {
		body, err := c.do(ctx, "GET", c.groupsEndpoint, nil, nil)
		if err != nil {
			return nil, err
		}
		var list listResult
		if err := decodeResult(body, &list); err != nil {
			return nil, model.NewProtocolError(c.groupsEndpoint, err.Error())
		}

		groups := make([]model.ProductGroup, 0, len(list.Data))
		for _, raw := range list.Data {
			g := extract.Group(raw)
			if g.IsDeleted {
				continue
			}
			groups = append(groups, g)
		}
		return groups, nil
	}, c.retryOptions(CategoryCatalog))
	if err != nil {
		c.logFailure(ctx, CategoryCatalog, "listing groups failed", err)
		return nil, err
	}
	return groups, nil
}

// GetProduct fetches a single product.
func (c *Client) GetProduct(ctx context.Context, id string) (model.Product, error) {
	rec, err := retry.DoWithData(ctx, func(ctx context.Context) (record, error) {
		return c.fetchRecord(ctx, id)
	}, c.retryOptions(CategoryProduct))
	if err != nil {
		c.logFailure(ctx, CategoryProduct, "fetching product failed", err, slog.String("product_id", id))
		return model.Product{}, err
	}
	return rec.product(c.baseURL)
}

// GetProductImage returns a loadable URL for the product's main image, or ""
// when it has none.
func (c *Client) GetProductImage(ctx context.Context, id string) (string, error) {
	path := productPath + "/" + url.PathEscape(id) + "/images"
	query := url.Values{"id": {id}}

	return retry.DoWithData(ctx, func(ctx context.Context) (string, error) {
		body, err := c.do(ctx, "GET", path, query, nil)
		if err != nil {
			return "", err
		}
		images, err := decodeImages(body)
		if err != nil {
			return "", model.NewProtocolError(path, err.Error())
		}
		if len(images) == 0 {
			return "", nil
		}
		chosen := images[0]
		for _, img := range images {
			if extract.Bool(img["isMain"], false) {
				chosen = img
				break
			}
		}
		return extract.ImageURL(chosen, c.baseURL), nil
	}, c.retryOptions(CategoryProduct))
}

// decodeImages accepts a bare array, {result: [...]} or {result: {data: [...]}}.
func decodeImages(body []byte) ([]map[string]any, error) {
	var images []map[string]any
	if err := json.Unmarshal(body, &images); err == nil {
		return images, nil
	}
	result, err := unwrapResult(body)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(result, &images); err == nil {
		return images, nil
	}
	var list listResult
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// GetStock reads the current stock of a product. The endpoint answers with
// a bare number, {"result": n} or plain text depending on server version.
func (c *Client) GetStock(ctx context.Context, id string) (int, error) {
	path := "/stock/" + url.PathEscape(id)
	return retry.DoWithData(ctx, func(ctx context.Context) (int, error) {
		body, err := c.do(ctx, "GET", path, nil, nil)
		if err != nil {
			return 0, err
		}
		n, ok := parseStock(body)
		if !ok {
			return 0, model.NewProtocolError(path, fmt.Sprintf("unrecognized stock response %q", truncate(string(body), 64)))
		}
		return n, nil
	}, c.retryOptions(CategoryStock))
}

func parseStock(body []byte) (int, bool) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return parseStockText(string(body))
	}
	if m, ok := v.(map[string]any); ok {
		v = m["result"]
	}
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		return parseStockText(t)
	}
	return 0, false
}

func parseStockText(s string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

func decodeResult(body []byte, v any) error {
	result, err := unwrapResult(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(result, v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
