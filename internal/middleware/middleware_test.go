package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/capitalize-ai/chopibot/internal/model"
	"github.com/capitalize-ai/chopibot/pkg/logger"
)

const testSecret = "s3cret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestAuth(t *testing.T) {
	var gotChannel string
	var gotScopes []string
	h := Auth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotChannel = GetChannelID(r.Context())
		gotScopes = GetScopes(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"bad format", "Token abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", Claims{ChannelID: "facebook"}), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
		}), http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, testSecret, Claims{ChannelID: "facebook", Scopes: []string{ScopeStateRead}}), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/messages", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.status, rec.Code)
		})
	}
	require.Equal(t, "facebook", gotChannel)
	require.Equal(t, []string{ScopeStateRead}, gotScopes)
}

func TestRequireScope(t *testing.T) {
	h := Auth(testSecret)(RequireScope(ScopeStateRead)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, Claims{ChannelID: "web"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogging_CorrelationID(t *testing.T) {
	var fromCtx string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, "corr-1", fromCtx)
	require.Equal(t, "corr-1", rec.Header().Get("X-Correlation-ID"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/messages", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	require.Contains(t, last.Body.String(), `"retry_after":60`)
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestValidateActivity(t *testing.T) {
	valid := func() *model.Activity {
		return &model.Activity{
			Type:         model.ActivityTypeMessage,
			From:         model.ChannelAccount{ID: "u"},
			Conversation: model.ConversationAccount{ID: "c"},
			Text:         "hola",
		}
	}
	require.NoError(t, ValidateActivity(valid()))

	a := valid()
	a.Type = ""
	require.ErrorContains(t, ValidateActivity(a), "type")

	a = valid()
	a.Conversation.ID = ""
	require.ErrorContains(t, ValidateActivity(a), "conversation ID")

	a = valid()
	a.Text = strings.Repeat("a", maxTextLength+1)
	require.ErrorContains(t, ValidateActivity(a), "maximum length")

	a = valid()
	a.Text = "\xff\xfe"
	require.ErrorContains(t, ValidateActivity(a), "UTF-8")

	a = valid()
	a.From.ID = ""
	require.ErrorContains(t, ValidateActivity(a), "sender")

	a = valid()
	a.Type = model.ActivityTypeConversationUpdate
	a.From.ID = ""
	a.Text = ""
	require.NoError(t, ValidateActivity(a))
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	var traceID string
	h := Tracing("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = trace.SpanContextFromContext(r.Context()).TraceID().String()
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/messages", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID)
}
