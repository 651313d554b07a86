// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/qolzam/dbkit/internal/database/expression"
	"github.com/qolzam/dbkit/internal/database/interfaces"
	"github.com/qolzam/dbkit/internal/database/query"
	"github.com/qolzam/dbkit/internal/orm"
)

type Handler struct {
	backend Backend
}

func NewHandler(backend Backend) *Handler {
	return &Handler{backend: backend}
}

// Health reports whether the active database is connected
func (h *Handler) Health(c *fiber.Ctx) error {
	connected := false
	if db, err := h.backend.Database(); err == nil {
		connected = db.IsConnected()
	}
	status := http.StatusOK
	if !connected {
		status = http.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"connected": connected})
}

// List finds the rows of a store.
//
//	filter  JSON filter expression
//	limit   positive row limit
//	sort    comma separated field[:asc|desc] list
func (h *Handler) List(c *fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return err
	}

	criteria := &interfaces.Criteria{}
	if raw := c.Query("filter"); raw != "" {
		filter, err := expression.DecodeJSON([]byte(raw))
		if err != nil {
			return interfaces.ValidationError(err, "invalid filter")
		}
		criteria.Filter = filter
	}
	if raw := c.Query("sort"); raw != "" {
		fields, err := parseSort(raw)
		if err != nil {
			return err
		}
		criteria.Clauses = append(criteria.Clauses, interfaces.SortClause(fields...))
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit <= 0 {
			return interfaces.ValidationError(err, "limit must be a positive integer, got %q", raw)
		}
		criteria.Clauses = append(criteria.Clauses, interfaces.LimitClause(limit))
	}

	res := <-store.Find(c.UserContext(), criteria)
	if res.Error != nil {
		return res.Error
	}
	return c.JSON(res.Models)
}

// Create inserts the JSON body as a new model
func (h *Handler) Create(c *fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return err
	}
	m, err := store.NewModel()
	if err != nil {
		return err
	}
	body, err := bodyDocument(c)
	if err != nil {
		return err
	}
	for _, e := range body {
		if err := m.Set(e.Key, e.Value); err != nil {
			return err
		}
	}

	res := <-store.Add(c.UserContext(), m)
	if res.Error != nil {
		return res.Error
	}
	return c.Status(http.StatusCreated).JSON(m)
}

// Update sets the JSON body fields on the row with the path id
func (h *Handler) Update(c *fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return err
	}
	m, err := store.NewModel()
	if err != nil {
		return err
	}
	id := parseID(c.Params("id"))
	m.SetID(id)

	body, err := bodyDocument(c)
	if err != nil {
		return err
	}
	for _, e := range body {
		if e.Key == m.IDField() {
			continue
		}
		if err := m.Set(e.Key, e.Value); err != nil {
			return err
		}
	}
	if !m.IsDirty() {
		return interfaces.ValidationError(nil, "update needs at least one field")
	}

	res := <-m.Save(c.UserContext())
	if res.Error != nil {
		return res.Error
	}

	// MySQL reports changed rather than matched rows, read back instead
	found := <-store.Find(c.UserContext(), &interfaces.Criteria{Filter: expression.D{{Key: m.IDField(), Value: id}}})
	if found.Error != nil {
		return found.Error
	}
	if len(found.Models) == 0 {
		return ErrRecordNotFound
	}
	return c.JSON(found.Models[0])
}

// Delete removes the row with the path id
func (h *Handler) Delete(c *fiber.Ctx) error {
	store, err := h.store(c)
	if err != nil {
		return err
	}
	m, err := store.NewModel()
	if err != nil {
		return err
	}
	m.SetID(parseID(c.Params("id")))

	res := <-store.Remove(c.UserContext(), m)
	if res.Error != nil {
		return res.Error
	}
	if res.Affected == 0 {
		return ErrRecordNotFound
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) store(c *fiber.Ctx) (*orm.Store, error) {
	name := c.Params("store")
	store, ok := h.backend.Store(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, name)
	}
	return store, nil
}

// bodyDocument decodes a JSON object body keeping its key order
func bodyDocument(c *fiber.Ctx) (expression.D, error) {
	v, err := expression.DecodeJSON(c.Body())
	if err != nil {
		return nil, interfaces.ValidationError(err, "invalid JSON body")
	}
	doc, ok := v.(expression.D)
	if !ok {
		return nil, interfaces.ValidationError(nil, "body must be a JSON object")
	}
	return doc, nil
}

func parseSort(raw string) ([]interfaces.SortField, error) {
	var fields []interfaces.SortField
	for _, part := range strings.Split(raw, ",") {
		field, order, _ := strings.Cut(strings.TrimSpace(part), ":")
		if !expression.IsIdentifier(field) {
			return nil, interfaces.ValidationError(query.ErrInvalidIdentifier, "invalid sort %q", raw)
		}
		order, err := query.NormalizeOrder(order)
		if err != nil {
			return nil, err
		}
		fields = append(fields, interfaces.SortField{Field: field, Order: order})
	}
	return fields, nil
}

// parseID keeps numeric ids numeric for the SQL databases
func parseID(raw string) interface{} {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	return raw
}
