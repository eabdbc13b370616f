//go:build unit

package http

import (
	"bytes"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type leadPayload struct {
	EventName  string     `json:"event_name" validate:"required,event_name"`
	EventID    string     `json:"event_id" validate:"max=36"`
	SourceURL  string     `json:"source_url" validate:"omitempty,url"`
	Value      string     `json:"value" validate:"nonnegative_amount"`
	EventTime  int64      `json:"event_time" validate:"gte=0"`
	ActionType string     `json:"action_type" validate:"omitempty,oneof=website app"`
	Items      []leadItem `json:"items" validate:"max=2,dive"`
}

type leadItem struct {
	Name string `json:"name" validate:"required,measurement_name"`
}

func validLead() leadPayload {
	return leadPayload{EventName: "Lead", Items: []leadItem{{Name: "generate_lead"}}}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*leadPayload)
		wantErr error
		wantMsg string
	}{
		{name: "valid", mutate: func(*leadPayload) {}},
		{name: "missing event name", mutate: func(p *leadPayload) { p.EventName = "" }, wantErr: ErrFieldRequired, wantMsg: "'event_name'"},
		{
			name:    "event name too long",
			mutate:  func(p *leadPayload) { p.EventName = string(bytes.Repeat([]byte("a"), 101)) },
			wantErr: ErrFieldEventName,
		},
		{name: "event name with blanks", mutate: func(p *leadPayload) { p.EventName = " Lead" }, wantErr: ErrFieldEventName},
		{name: "event name with control char", mutate: func(p *leadPayload) { p.EventName = "Le\nad" }, wantErr: ErrFieldEventName},
		{name: "event id too long", mutate: func(p *leadPayload) { p.EventID = string(bytes.Repeat([]byte("e"), 37)) }, wantErr: ErrFieldMaxLength},
		{name: "bad url", mutate: func(p *leadPayload) { p.SourceURL = "not a url" }, wantErr: ErrFieldURL},
		{name: "negative value", mutate: func(p *leadPayload) { p.Value = "-1.50" }, wantErr: ErrFieldNonNegativeAmount},
		{name: "zero value is fine", mutate: func(p *leadPayload) { p.Value = "0" }},
		{name: "negative event time", mutate: func(p *leadPayload) { p.EventTime = -1 }, wantErr: ErrFieldOutOfRange},
		{name: "unknown action", mutate: func(p *leadPayload) { p.ActionType = "email" }, wantErr: ErrFieldOneOf},
		{
			name:    "measurement name starting with digit",
			mutate:  func(p *leadPayload) { p.Items[0].Name = "1st_visit" },
			wantErr: ErrFieldEventName,
			wantMsg: "'items[0].name'",
		},
		{
			name:    "measurement name with dash",
			mutate:  func(p *leadPayload) { p.Items[0].Name = "page-view" },
			wantErr: ErrFieldEventName,
		},
		{
			name:    "too many items",
			mutate:  func(p *leadPayload) { p.Items = append(p.Items, leadItem{Name: "a"}, leadItem{Name: "b"}) },
			wantErr: ErrFieldMaxLength,
			wantMsg: "'items'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			payload := validLead()
			payload.Items = append([]leadItem(nil), payload.Items...)
			tt.mutate(&payload)

			err := ValidateStruct(payload)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)

			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidateAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   any
		wantErr bool
	}{
		{name: "absent", value: nil},
		{name: "float", value: 150.0},
		{name: "zero", value: 0.0},
		{name: "int", value: 10},
		{name: "numeric string", value: " 99.90 "},
		{name: "decimal", value: decimal.RequireFromString("1.5")},
		{name: "blank string", value: "  "},
		{name: "negative float", value: -0.01, wantErr: true},
		{name: "negative string", value: "-3", wantErr: true},
		{name: "garbage string", value: "abc", wantErr: true},
		{name: "nan", value: math.NaN(), wantErr: true},
		{name: "infinite", value: math.Inf(1), wantErr: true},
		{name: "bool", value: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateAmount("value", tt.value)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrFieldNonNegativeAmount)
				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestParseBodyAndValidate(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		var payload leadPayload
		if err := ParseBodyAndValidate(c, &payload); err != nil {
			return BadRequestError(c, err.Error())
		}

		return OK(c, fiber.Map{"event_name": payload.EventName})
	})

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{name: "valid", contentType: fiber.MIMEApplicationJSON, body: `{"event_name":"Lead","value":"2"}`, wantStatus: http.StatusOK},
		{name: "charset suffix", contentType: "application/json; charset=utf-8", body: `{"event_name":"Lead"}`, wantStatus: http.StatusOK},
		{name: "invalid json", contentType: fiber.MIMEApplicationJSON, body: `{"event_name":`, wantStatus: http.StatusBadRequest},
		{name: "wrong content type", contentType: fiber.MIMETextPlain, body: `event_name=Lead`, wantStatus: http.StatusBadRequest},
		{name: "validation failure", contentType: fiber.MIMEApplicationJSON, body: `{"value":"2"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			req.Header.Set(fiber.HeaderContentType, tt.contentType)

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { require.NoError(t, resp.Body.Close()) }()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestFieldPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "events[0].name", fieldPath("MeasurementRequest.events[0].name"))
	assert.Equal(t, "value", fieldPath("value"))
}
