package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/logging"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/sirupsen/logrus"
)

// RESTTransport reaches the repository through its OData Web API.
// Service lines come back in the same response via $expand.
type RESTTransport struct {
	client *resty.Client
	cfg    model.RESTConfig
	odata  odataBuilder
	log    logrus.FieldLogger
}

// NewRESTTransport builds the transport. The bearer token is optional; acquiring one is the caller's job.
func NewRESTTransport(cfg model.RESTConfig, log logrus.FieldLogger) (*RESTTransport, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest transport needs a base URL")
	}
	defaults := model.DefaultConfig().Gateway.REST
	if cfg.APIPath == "" {
		cfg.APIPath = defaults.APIPath
	}
	if cfg.ClaimSet == "" {
		cfg.ClaimSet = defaults.ClaimSet
	}
	if cfg.LineNavigation == "" {
		cfg.LineNavigation = defaults.LineNavigation
	}

	log = logging.OrDiscard(log).WithField("transport", "rest")
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"+strings.Trim(cfg.APIPath, "/")).
		SetHeaders(map[string]string{
			"Accept":           "application/json",
			"OData-MaxVersion": "4.0",
			"OData-Version":    "4.0",
			"Prefer":           `odata.include-annotations="*"`,
		}).
		SetLogger(log)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &RESTTransport{
		client: client,
		cfg:    cfg,
		odata:  odataBuilder{lineNavigation: cfg.LineNavigation},
		log:    log,
	}, nil
}

// Name returns the transport name
func (t *RESTTransport) Name() string {
	return "rest"
}

// Fetch reads the entity by key when the id is a GUID, otherwise filters by name
func (t *RESTTransport) Fetch(ctx context.Context, claimID string) (model.Claim, error) {
	notFound := errs.E(errs.KindNotFound, "gateway.fetch", fmt.Errorf("no claim matches %q", claimID)).WithClaim(claimID)

	if id, err := uuid.Parse(claimID); err == nil {
		path := fmt.Sprintf("/%s(%s)", t.cfg.ClaimSet, id.String())
		resp, err := t.get(ctx, path, map[string]string{"$expand": t.cfg.LineNavigation})
		if err != nil {
			return model.Claim{}, err
		}
		if resp.StatusCode() == http.StatusNotFound {
			return model.Claim{}, notFound
		}
		if resp.IsError() {
			return model.Claim{}, httpError(resp)
		}
		var r row
		if err := json.Unmarshal(resp.Body(), &r); err != nil {
			return model.Claim{}, fmt.Errorf("decode claim: %w", err)
		}
		return t.claim(r), nil
	}

	claims, err := t.list(ctx, map[string]string{
		"$filter": t.odata.identity(claimID, "eq"),
		"$top":    "1",
		"$expand": t.cfg.LineNavigation,
	})
	if err != nil {
		return model.Claim{}, err
	}
	if len(claims) == 0 {
		return model.Claim{}, notFound
	}
	return claims[0], nil
}

// Query translates q into $filter and returns the newest matches
func (t *RESTTransport) Query(ctx context.Context, q model.StructuredQuery, limit int) ([]model.Claim, error) {
	filter, err := t.odata.filter(q)
	if err != nil {
		return nil, fmt.Errorf("translate query: %w", err)
	}
	params := map[string]string{
		"$top":     strconv.Itoa(limit),
		"$orderby": colCreatedOn + " desc",
		"$expand":  t.cfg.LineNavigation,
	}
	if filter != "" {
		params["$filter"] = filter
	}
	return t.list(ctx, params)
}

func (t *RESTTransport) list(ctx context.Context, params map[string]string) ([]model.Claim, error) {
	resp, err := t.get(ctx, "/"+t.cfg.ClaimSet, params)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, httpError(resp)
	}
	rows, err := decodeRows(resp.Body())
	if err != nil {
		return nil, err
	}
	claims := make([]model.Claim, len(rows))
	for i, r := range rows {
		claims[i] = t.claim(r)
	}
	return claims, nil
}

func (t *RESTTransport) get(ctx context.Context, path string, params map[string]string) (*resty.Response, error) {
	t.log.WithFields(logrus.Fields{"path": path, "params": params}).Debug("GET")
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return resp, nil
}

// claim decodes an entity row together with its expanded service lines
func (t *RESTTransport) claim(r row) model.Claim {
	c := claimFromRow(r)
	raw, _ := r[t.cfg.LineNavigation].([]interface{})
	lines := make([]row, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			lines = append(lines, row(m))
		}
	}
	c.Lines = linesFromRows(lines)
	return c
}

func httpError(resp *resty.Response) error {
	body := strings.TrimSpace(string(resp.Body()))
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode(), body)
}
