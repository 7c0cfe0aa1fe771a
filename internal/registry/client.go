// Package registry talks to the downstream registry API. Entities are
// addressed by URL-encoded natural identifier, one path segment per nesting
// level. Delivery is best-effort: callers get an error only on transport
// failure; API status codes merely pick the logging severity.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"regsync/internal/registry/models"
)

// Client is the HTTP client for the registry API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// CreateProfessional creates a professional. With force set, an existing
// record under the same key is overwritten instead of rejected.
func (c *Client) CreateProfessional(ctx context.Context, p models.Professional, force bool) error {
	target := c.professionalsURL()
	if force {
		target += "/force"
	}
	return c.send(ctx, http.MethodPost, target, p)
}

// UpdateProfessional updates the professional's scalar attributes only.
func (c *Client) UpdateProfessional(ctx context.Context, p models.Professional) error {
	return c.send(ctx, http.MethodPut, c.professionalURL(p.NationalID), p.Naked())
}

func (c *Client) DeleteProfessional(ctx context.Context, nationalID string) error {
	return c.send(ctx, http.MethodDelete, c.professionalURL(nationalID), nil)
}

// ForceDeleteProfessional removes a professional even when the registry
// would otherwise refuse; used by the remap engine.
func (c *Client) ForceDeleteProfessional(ctx context.Context, nationalID string) error {
	return c.send(ctx, http.MethodDelete, c.professionalsURL()+"/force/"+escape(nationalID), nil)
}

// ProfessionalExists reports whether a professional is stored under the
// given identifier.
func (c *Client) ProfessionalExists(ctx context.Context, nationalID string) (bool, error) {
	status, _, err := c.get(ctx, c.professionalURL(nationalID))
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

func (c *Client) CreateExercise(ctx context.Context, nationalID string, e models.Exercise) error {
	return c.send(ctx, http.MethodPost, c.exercisesURL(nationalID), e)
}

// UpdateExercise updates the exercise's scalar attributes only.
func (c *Client) UpdateExercise(ctx context.Context, nationalID string, e models.Exercise) error {
	return c.send(ctx, http.MethodPut, c.exerciseURL(nationalID, e.ProfessionID), e.Naked())
}

func (c *Client) DeleteExercise(ctx context.Context, nationalID, professionID string) error {
	return c.send(ctx, http.MethodDelete, c.exerciseURL(nationalID, professionID), nil)
}

func (c *Client) CreateExpertise(ctx context.Context, nationalID, professionID string, x models.Expertise) error {
	return c.send(ctx, http.MethodPost, c.exerciseURL(nationalID, professionID)+"/expertises", x)
}

// UpdateExpertise replaces the expertise wholesale; expertises are leaves.
func (c *Client) UpdateExpertise(ctx context.Context, nationalID, professionID string, x models.Expertise) error {
	return c.send(ctx, http.MethodPut, c.exerciseURL(nationalID, professionID)+"/expertises/"+escape(x.ExpertiseID), x)
}

func (c *Client) DeleteExpertise(ctx context.Context, nationalID, professionID, expertiseID string) error {
	return c.send(ctx, http.MethodDelete, c.exerciseURL(nationalID, professionID)+"/expertises/"+escape(expertiseID), nil)
}

func (c *Client) CreateSituation(ctx context.Context, nationalID, professionID string, s models.WorkSituation) error {
	return c.send(ctx, http.MethodPost, c.exerciseURL(nationalID, professionID)+"/situations", s)
}

// UpdateSituation replaces the situation wholesale, structure references
// included.
func (c *Client) UpdateSituation(ctx context.Context, nationalID, professionID string, s models.WorkSituation) error {
	return c.send(ctx, http.MethodPut, c.exerciseURL(nationalID, professionID)+"/situations/"+escape(s.SituationID), s)
}

func (c *Client) DeleteSituation(ctx context.Context, nationalID, professionID, situationID string) error {
	return c.send(ctx, http.MethodDelete, c.exerciseURL(nationalID, professionID)+"/situations/"+escape(situationID), nil)
}

func (c *Client) CreateStructure(ctx context.Context, s models.Structure) error {
	return c.send(ctx, http.MethodPost, c.baseURL+"/structures", s)
}

// UpdateStructure replaces the structure wholesale.
func (c *Client) UpdateStructure(ctx context.Context, s models.Structure) error {
	return c.send(ctx, http.MethodPut, c.structureURL(s.StructureID), s)
}

func (c *Client) DeleteStructure(ctx context.Context, structureID string) error {
	return c.send(ctx, http.MethodDelete, c.structureURL(structureID), nil)
}

// GetCorrespondence returns the stored correspondence for oldID, or nil when
// the registry has none.
func (c *Client) GetCorrespondence(ctx context.Context, oldID string) (*models.Correspondence, error) {
	status, body, err := c.get(ctx, c.correspondenceURL(oldID))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching correspondence %s", status, oldID)
	}
	var stored models.Correspondence
	if err := json.Unmarshal(body, &stored); err != nil {
		return nil, fmt.Errorf("decoding correspondence %s: %w", oldID, err)
	}
	return &stored, nil
}

// UpsertCorrespondence creates or overwrites the correspondence record; the
// operation is idempotent.
func (c *Client) UpsertCorrespondence(ctx context.Context, entry models.Correspondence) error {
	return c.send(ctx, http.MethodPut, c.correspondenceURL(entry.OldID), entry)
}

func (c *Client) professionalsURL() string {
	return c.baseURL + "/professionals"
}

func (c *Client) professionalURL(nationalID string) string {
	return c.professionalsURL() + "/" + escape(nationalID)
}

func (c *Client) exercisesURL(nationalID string) string {
	return c.professionalURL(nationalID) + "/exercises"
}

func (c *Client) exerciseURL(nationalID, professionID string) string {
	return c.exercisesURL(nationalID) + "/" + escape(professionID)
}

func (c *Client) structureURL(structureID string) string {
	return c.baseURL + "/structures/" + escape(structureID)
}

func (c *Client) correspondenceURL(oldID string) string {
	return c.baseURL + "/identity-correspondence/" + escape(oldID)
}

func escape(id string) string {
	return url.PathEscape(id)
}

// send performs a mutating call. The response status is inspected only to
// classify logging severity; the error return covers transport failure.
func (c *Client) send(ctx context.Context, method, target string, payload any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Close = true

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	c.logResponse(ctx, method, target, resp.StatusCode)
	return nil
}

func (c *Client) get(ctx context.Context, target string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Close = true

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func (c *Client) logResponse(ctx context.Context, method, target string, status int) {
	switch {
	case status >= 200 && status < 300:
		c.logger.DebugContext(ctx, "registry call ok", "method", method, "url", target, "status", status)
	case status == http.StatusNotFound:
		c.logger.DebugContext(ctx, "registry entity not found", "method", method, "url", target, "status", status)
	case status == http.StatusConflict:
		c.logger.DebugContext(ctx, "registry entity already exists", "method", method, "url", target, "status", status)
	case status >= 500:
		c.logger.ErrorContext(ctx, "registry server error", "method", method, "url", target, "status", status)
	default:
		c.logger.ErrorContext(ctx, "unexpected registry response", "method", method, "url", target, "status", status)
	}
}
