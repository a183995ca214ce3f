package gizmo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"gizmo-stock/internal/extract"
	"gizmo-stock/internal/model"
	"gizmo-stock/internal/retry"
)

// productPath is the read-modify-write resource. It is fixed by the POS and
// independent of the configurable listing endpoint.
const productPath = "/v2.0/products"

// requiredFields must exist on a fetched record before it may be written
// back. Without them the PUT would reset the product's identity.
var requiredFields = []string{"id", "productType", "guid", "name"}

// record is a product exactly as the POS returned it. Values are kept raw
// so untouched fields are written back byte for byte.
type record map[string]json.RawMessage

func (r record) product(baseURL string) (model.Product, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return model.Product{}, fmt.Errorf("encoding record: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Product{}, fmt.Errorf("decoding record: %w", err)
	}
	return extract.Product(raw, baseURL), nil
}

func (c *Client) fetchRecord(ctx context.Context, id string) (record, error) {
	path := productPath + "/" + url.PathEscape(id)
	body, err := c.do(ctx, "GET", path, nil, nil)
	if err != nil {
		return nil, err
	}

	result, err := unwrapResult(body)
	if err != nil {
		return nil, model.NewProtocolError(c.baseURL+path, err.Error())
	}
	var rec record
	if err := json.Unmarshal(result, &rec); err != nil || rec == nil {
		return nil, model.NewProtocolError(c.baseURL+path, "response is not a product record")
	}
	return rec, nil
}

// buildPayload copies every field of current and overwrites only the fields
// set in patch.
func buildPayload(current record, patch model.ProductPatch) (record, error) {
	for _, field := range requiredFields {
		if _, ok := current[field]; !ok {
			return nil, fmt.Errorf("%w: fetched record missing %q", model.ErrProtocol, field)
		}
	}

	payload := make(record, len(current)+1)
	for k, v := range current {
		payload[k] = v
	}

	set := func(field string, v any) {
		data, _ := json.Marshal(v)
		payload[field] = data
	}
	if v, ok := patch.Name.Get(); ok {
		set("name", v)
	}
	if v, ok := patch.Price.Get(); ok {
		set("price", v)
	}
	if v, ok := patch.Cost.Get(); ok {
		set("cost", v)
	}
	if v, ok := patch.Barcode.Get(); ok {
		set("barcode", v)
	}
	if v, ok := patch.IsDeleted.Get(); ok {
		set("isDeleted", v)
	}
	if _, ok := payload["isDeleted"]; !ok {
		set("isDeleted", false)
	}
	return payload, nil
}

// UpdateProduct overwrites the fields set in patch and returns the product
// as written.
func (c *Client) UpdateProduct(ctx context.Context, id string, patch model.ProductPatch) (model.Product, error) {
	return c.updateRecord(ctx, CategoryProduct, id, patch)
}

// UpdatePrice sets a product's sale price.
func (c *Client) UpdatePrice(ctx context.Context, id string, price float64) error {
	_, err := c.updateRecord(ctx, CategoryPrice, id, model.ProductPatch{Price: model.Some(price)})
	return err
}

// UpdateCost sets a product's purchase cost.
func (c *Client) UpdateCost(ctx context.Context, id string, cost float64) error {
	_, err := c.updateRecord(ctx, CategoryCost, id, model.ProductPatch{Cost: model.Some(cost)})
	return err
}

// UpdateBarcode sets a product's barcode.
func (c *Client) UpdateBarcode(ctx context.Context, id, barcode string) error {
	_, err := c.updateRecord(ctx, CategoryBarcode, id, model.ProductPatch{Barcode: model.Some(barcode)})
	return err
}

// UpdateName renames a product.
func (c *Client) UpdateName(ctx context.Context, id, name string) error {
	_, err := c.updateRecord(ctx, CategoryName, id, model.ProductPatch{Name: model.Some(name)})
	return err
}

// SetDeleted flips a product's soft-delete flag.
func (c *Client) SetDeleted(ctx context.Context, id string, deleted bool) error {
	_, err := c.updateRecord(ctx, CategoryProduct, id, model.ProductPatch{IsDeleted: model.Some(deleted)})
	return err
}

func (c *Client) updateRecord(ctx context.Context, category, id string, patch model.ProductPatch) (model.Product, error) {
	if patch.IsEmpty() {
		return model.Product{}, model.NewValidationError("patch", "no fields to update")
	}

	c.logger.Info("updating product",
		slog.String("category", category),
		slog.String("product_id", id),
	)

	written, err := retry.DoWithData(ctx, func(ctx context.Context) (record, error) {
		current, err := c.fetchRecord(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetching product %s: %w", id, err)
		}
		c.logger.Debug("fetched current record",
			slog.String("category", category),
			slog.String("product_id", id),
			slog.Int("fields", len(current)),
		)

		payload, err := buildPayload(current, patch)
		if err != nil {
			return nil, err
		}

		body, err := c.do(ctx, "PUT", productPath, nil, payload)
		if err != nil {
			return nil, fmt.Errorf("writing product %s: %w", id, err)
		}
		if err := checkWriteResponse(body); err != nil {
			return nil, model.NewProtocolError(c.baseURL+productPath, err.Error())
		}
		return payload, nil
	}, c.retryOptions(category))
	if err != nil {
		c.logFailure(ctx, category, "product update failed", err, slog.String("product_id", id))
		return model.Product{}, err
	}

	c.logger.Info("product updated",
		slog.String("category", category),
		slog.String("product_id", id),
	)
	return written.product(c.baseURL)
}

// checkWriteResponse accepts an empty body or an envelope without isError.
func checkWriteResponse(body []byte) error {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	if env.IsError {
		return fmt.Errorf("server rejected update: %s", withDefault(env.Message, "no message"))
	}
	return nil
}

// UpdateStock sets a product's stock count. The endpoint takes no body and
// its response is not necessarily JSON; any 2xx is success.
func (c *Client) UpdateStock(ctx context.Context, id string, count int) error {
	path := fmt.Sprintf("/stock/%s/%d", url.PathEscape(id), count)

	c.logger.Info("updating stock",
		slog.String("category", CategoryStock),
		slog.String("product_id", id),
		slog.Int("count", count),
	)

	err := retry.Do(ctx, func(ctx context.Context) error {
		_, err := c.do(ctx, "POST", path, nil, nil)
		return err
	}, c.retryOptions(CategoryStock))
	if err != nil {
		c.logFailure(ctx, CategoryStock, "stock update failed", err, slog.String("product_id", id))
		return err
	}

	c.logger.Info("stock updated",
		slog.String("category", CategoryStock),
		slog.String("product_id", id),
		slog.String("url", c.baseURL+path),
	)
	return nil
}
