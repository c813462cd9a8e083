package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// StatusUnrecognized es la señal del proveedor para un identificador desconocido.
const StatusUnrecognized = http.StatusUnprocessableEntity

// ProvisionNotExist es la respuesta del endpoint cuando no hay usuario legado.
const ProvisionNotExist = "not exist"

// RetryTransport envuelve las llamadas al proveedor hosted. Ante un 422 pide
// aprovisionamiento just-in-time y repite la llamada original una sola vez.
type RetryTransport struct {
	base         http.RoundTripper
	provisionURL string
	logger       *zap.Logger
}

func NewRetryTransport(base http.RoundTripper, provisionURL string, logger *zap.Logger) *RetryTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryTransport{
		base:         base,
		provisionURL: provisionURL,
		logger:       logger,
	}
}

// InstallRetry instala el interceptor en el cliente y devuelve la funcion que
// restaura el transporte original. Usar con defer.
func InstallRetry(client *http.Client, provisionURL string, logger *zap.Logger) (restore func()) {
	prev := client.Transport
	client.Transport = NewRetryTransport(prev, provisionURL, logger)
	return func() {
		client.Transport = prev
	}
}

func (t *RetryTransport) transport() http.RoundTripper {
	if t.base != nil {
		return t.base
	}
	return http.DefaultTransport
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	original, err := t.transport().RoundTrip(withBody(req, body))
	if err != nil {
		return nil, err
	}
	if original.StatusCode != StatusUnrecognized {
		return original, nil
	}
	// Solo el paso de identificacion admite aprovisionamiento. Un 422 de otro
	// paso (password incorrecto) vuelve tal cual y su cuerpo no sale de aca.
	identifier := identifierPair(body)
	if identifier == "" {
		return original, nil
	}

	// El cuerpo del 422 se guarda para poder devolverlo intacto.
	originalBody, err := io.ReadAll(original.Body)
	original.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	original.Body = io.NopCloser(bytes.NewReader(originalBody))

	exists, err := t.provision(req.Context(), identifier)
	if err != nil {
		t.logger.Warn("jit provisioning failed", zap.Error(err), zap.String("url", req.URL.String()))
		return original, nil
	}
	if !exists {
		return original, nil
	}

	replay, err := t.transport().RoundTrip(withBody(req, body))
	if err != nil {
		t.logger.Warn("replay after provisioning failed", zap.Error(err), zap.String("url", req.URL.String()))
		original.Body = io.NopCloser(bytes.NewReader(originalBody))
		return original, nil
	}
	t.logger.Info("request replayed after provisioning",
		zap.String("url", req.URL.String()),
		zap.Int("status", replay.StatusCode),
	)
	return replay, nil
}

type provisionRequest struct {
	Email string `json:"email"`
}

type provisionResponse struct {
	Error  string `json:"error,omitempty"`
	Succes string `json:"succes,omitempty"`
}

// identifierPair devuelve "identifier=<email>" codificado si el cuerpo form
// trae un identificador, o "" en cualquier otro caso.
func identifierPair(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return ""
	}
	identifier := values.Get("identifier")
	if identifier == "" {
		return ""
	}
	return url.Values{"identifier": {identifier}}.Encode()
}

// provision envia solo el par identifier; el servidor extrae el email.
func (t *RetryTransport) provision(ctx context.Context, pair string) (bool, error) {
	payload, err := json.Marshal(provisionRequest{Email: pair})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.provisionURL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.transport().RoundTrip(req)
	if err != nil {
		return false, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("provision endpoint status=%d", resp.StatusCode)
	}
	var pr provisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return false, fmt.Errorf("unmarshal response: %w", err)
	}
	return pr.Error != ProvisionNotExist, nil
}

// withBody clona la request con una copia fresca del cuerpo.
func withBody(req *http.Request, body []byte) *http.Request {
	out := req.Clone(req.Context())
	if body == nil {
		out.Body = nil
		out.GetBody = nil
		return out
	}
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	out.ContentLength = int64(len(body))
	return out
}
