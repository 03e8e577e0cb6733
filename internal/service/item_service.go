package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tinyvillage/villagehub/internal/adapter/outbound/cel"
	"github.com/tinyvillage/villagehub/internal/adapter/outbound/hubapi"
	"github.com/tinyvillage/villagehub/internal/domain/item"
	"github.com/tinyvillage/villagehub/internal/domain/validation"
	"github.com/tinyvillage/villagehub/internal/port/inbound"
	"github.com/tinyvillage/villagehub/internal/port/outbound"
)

// ItemAPI is the public catalog plus URL resolution for multipart calls.
type ItemAPI interface {
	outbound.CatalogAPI
	URL(path string) string
}

// ItemService lists and manages marketplace items. Reads of the public
// catalog go straight to the API; everything owner-scoped goes through
// the gateway.
type ItemService struct {
	api    ItemAPI
	gw     inbound.Requester
	logger *slog.Logger
}

// NewItemService creates a new ItemService.
func NewItemService(api ItemAPI, gw inbound.Requester, logger *slog.Logger) *ItemService {
	return &ItemService{api: api, gw: gw, logger: logger}
}

func itemPath(id int64) string {
	return "/items/" + strconv.FormatInt(id, 10)
}

// ListAvailable returns the public catalog, narrowed by filter when non-nil.
func (s *ItemService) ListAvailable(ctx context.Context, filter *cel.Filter) ([]item.Item, error) {
	items, err := s.api.ListAvailableItems(ctx)
	if err != nil {
		return nil, err
	}
	return filter.Apply(ctx, items)
}

// Get returns one item from the public catalog.
func (s *ItemService) Get(ctx context.Context, id int64) (*item.Item, error) {
	return s.api.GetItem(ctx, id)
}

// GetOwned returns one of the caller's items. Items that are neither for
// trade nor for donation are not in the public catalog, so a 404 there
// falls back to the caller's own listing.
func (s *ItemService) GetOwned(ctx context.Context, id int64) (*item.Item, error) {
	it, err := s.api.GetItem(ctx, id)
	if err == nil || !errors.Is(err, hubapi.ErrNotFound) {
		return it, err
	}
	mine, lerr := s.ListMine(ctx, nil)
	if lerr != nil {
		return nil, lerr
	}
	for i := range mine {
		if mine[i].ID == id {
			return &mine[i], nil
		}
	}
	return nil, err
}

// ListMine returns the caller's own items, narrowed by filter when non-nil.
func (s *ItemService) ListMine(ctx context.Context, filter *cel.Filter) ([]item.Item, error) {
	resp, err := s.gw.Do(ctx, http.MethodGet, "/items/my-items", nil)
	if err != nil {
		return nil, err
	}
	var items []item.Item
	if err := readResult(resp, &items); err != nil {
		return nil, fmt.Errorf("list my items: %w", err)
	}
	return filter.Apply(ctx, items)
}

func cleanDetails(d item.Details) item.Details {
	d.Name = validation.Clean(d.Name)
	d.Description = validation.Clean(d.Description)
	return d
}

// Create lists a new item. At least one image is required.
func (s *ItemService) Create(ctx context.Context, details item.Details, images []item.Image) (*item.Item, error) {
	details = cleanDetails(details)
	if err := validation.Struct(details); err != nil {
		return nil, err
	}
	if err := validation.Images(len(images)); err != nil {
		return nil, err
	}

	body, contentType, err := hubapi.NewItemForm(details, images)
	if err != nil {
		return nil, err
	}
	var created item.Item
	if err := s.multipart(ctx, http.MethodPost, "/items", body, contentType, &created); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.logger.Info("item created", "item_id", created.ID, "images", len(images))
	return &created, nil
}

// Update replaces the editable fields of an item.
func (s *ItemService) Update(ctx context.Context, id int64, details item.Details) (*item.Item, error) {
	details = cleanDetails(details)
	if err := validation.Struct(details); err != nil {
		return nil, err
	}
	resp, err := s.gw.Do(ctx, http.MethodPut, itemPath(id), details)
	if err != nil {
		return nil, err
	}
	var updated item.Item
	if err := readResult(resp, &updated); err != nil {
		return nil, fmt.Errorf("update item %d: %w", id, err)
	}
	return &updated, nil
}

// Delete removes an item.
func (s *ItemService) Delete(ctx context.Context, id int64) error {
	resp, err := s.gw.Do(ctx, http.MethodDelete, itemPath(id), nil)
	if err != nil {
		return err
	}
	if err := readResult(resp, nil); err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	s.logger.Info("item deleted", "item_id", id)
	return nil
}

// AddImage uploads one more image to an item.
func (s *ItemService) AddImage(ctx context.Context, id int64, img item.Image) (*item.Item, error) {
	body, contentType, err := hubapi.NewImageForm(img)
	if err != nil {
		return nil, err
	}
	var updated item.Item
	if err := s.multipart(ctx, http.MethodPost, itemPath(id)+"/images", body, contentType, &updated); err != nil {
		return nil, fmt.Errorf("add image to item %d: %w", id, err)
	}
	return &updated, nil
}

// DeleteImage removes the image at imageURL from an item.
func (s *ItemService) DeleteImage(ctx context.Context, id int64, imageURL string) error {
	if imageURL == "" {
		return validation.NewError("url", "Image URL is required")
	}
	path := itemPath(id) + "/images?url=" + url.QueryEscape(imageURL)
	resp, err := s.gw.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if err := readResult(resp, nil); err != nil {
		return fmt.Errorf("delete image of item %d: %w", id, err)
	}
	return nil
}

func (s *ItemService) multipart(ctx context.Context, method, path string, body []byte, contentType string, result any) error {
	resp, err := s.gw.MakeAuthenticatedRequest(ctx, s.api.URL(path), inbound.RequestOptions{
		Method: method,
		Header: http.Header{"Content-Type": {contentType}},
		Body:   body,
	})
	if err != nil {
		return err
	}
	return readResult(resp, result)
}
