package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"tally/internal/core"
	"tally/internal/services"
)

var errMalformedBody = errors.New("malformed request body")

// RequestBodyParser reads a body once and decodes it as JSON or as a form,
// depending on Content-Type and, failing that, on the first byte.
type RequestBodyParser struct {
	body        []byte
	contentType string
	err         error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(r.Body)
	return p
}

func (p *RequestBodyParser) isForm() bool {
	mt, _, _ := mime.ParseMediaType(p.contentType)
	switch mt {
	case "application/x-www-form-urlencoded":
		return true
	case "application/json":
		return false
	}
	trimmed := strings.TrimSpace(string(p.body))
	return trimmed != "" && trimmed[0] != '{'
}

func (p *RequestBodyParser) form() (url.Values, error) {
	v, err := url.ParseQuery(string(p.body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return v, nil
}

// Transaction decodes a transaction input.
func (p *RequestBodyParser) Transaction() (services.TransactionInput, error) {
	var in services.TransactionInput
	if p.err != nil {
		return in, p.err
	}
	if p.isForm() {
		f, err := p.form()
		if err != nil {
			return in, err
		}
		in = services.TransactionInput{
			Date:        f.Get("date"),
			Description: sanitizeInput(f.Get("desc")),
			Category:    sanitizeInput(f.Get("category")),
			Amount:      f.Get("amount"),
			Account:     sanitizeInput(f.Get("account")),
		}
		// Checkboxes post "on".
		if rec := strings.TrimSpace(f.Get("recurring")); strings.EqualFold(rec, "on") {
			in.Recurring = true
		} else {
			_ = in.Recurring.UnmarshalJSON([]byte(rec))
		}
		return in, nil
	}
	if len(strings.TrimSpace(string(p.body))) == 0 {
		return in, fmt.Errorf("%w: empty", errMalformedBody)
	}
	if err := json.Unmarshal(p.body, &in); err != nil {
		return in, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	in.Description = sanitizeInput(in.Description)
	in.Category = sanitizeInput(in.Category)
	in.Account = sanitizeInput(in.Account)
	return in, nil
}

// BudgetAmount decodes {"amount": ...} or amount=... The raw text is
// returned for the tracker to coerce.
func (p *RequestBodyParser) BudgetAmount() (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if p.isForm() {
		f, err := p.form()
		if err != nil {
			return "", err
		}
		return f.Get("amount"), nil
	}
	if len(strings.TrimSpace(string(p.body))) == 0 {
		return "", nil
	}
	var aux struct {
		Amount json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(p.body, &aux); err != nil {
		return "", fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	var s string
	if err := json.Unmarshal(aux.Amount, &s); err == nil {
		return s, nil
	}
	return strings.TrimSpace(string(aux.Amount)), nil
}

// parseQuery turns URL parameters into a tracker query. Accounts and
// categories may repeat or be comma separated.
func parseQuery(q url.Values) services.Query {
	return services.Query{
		Month:      strings.TrimSpace(q.Get("month")),
		Accounts:   listParam(q["account"]),
		Categories: listParam(q["category"]),
		Focus:      sanitizeInput(q.Get("focus")),
	}
}

func listParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = sanitizeInput(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// queryKey is a canonical cache key for q at a tracker version.
func queryKey(version uint64, q services.Query) string {
	return fmt.Sprintf("%d|%s|%s|%s|%s", version, q.Month,
		strings.Join(q.Accounts, ","), strings.Join(q.Categories, ","), q.Focus)
}

func pathID(r *http.Request) core.ID {
	return core.ID(strings.TrimSpace(r.PathValue("id")))
}

// sanitizeInput trims and removes control characters except tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
