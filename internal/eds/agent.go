package eds

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrAgentUnavailable — локальный сервис подписи не запущен или не отвечает.
	ErrAgentUnavailable = errors.New("eds: signing agent is not running")
	// ErrSigningCancelled — пользователь отменил выбор ключа.
	ErrSigningCancelled = errors.New("eds: key selection cancelled")
)

// Agent — клиент локального агента подписи (NCALayer), WebSocket + JSON.
type Agent struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer
}

func NewAgent(url string, timeout time.Duration) *Agent {
	return &Agent{
		url:     url,
		timeout: timeout,
		dialer: &websocket.Dialer{
			// Агент слушает на localhost с самоподписанным сертификатом.
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

type agentRequest struct {
	Module string   `json:"module"`
	Method string   `json:"method"`
	Args   []string `json:"args"`
}

type agentResponse struct {
	Code           string          `json:"code"`
	Message        string          `json:"message"`
	ResponseObject string          `json:"responseObject"`
	Result         json.RawMessage `json:"result"`
}

// SignNonce просит агента подписать nonce и возвращает подписанный конверт.
// Любое зависание ограничено таймаутом: наружу всегда уходит ошибка, не
// вечное ожидание.
func (a *Agent) SignNonce(ctx context.Context, nonce string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	conn, _, err := a.dialer.DialContext(ctx, a.url, nil)
	if err != nil {
		return "", ErrAgentUnavailable
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	req := agentRequest{
		Module: "kz.gov.pki.knca.commonUtils",
		Method: "signXml",
		Args:   []string{"PKCS12", "AUTHENTICATION", fmt.Sprintf("<auth><nonce>%s</nonce></auth>", nonce), "", ""},
	}
	if err := conn.WriteJSON(req); err != nil {
		return "", ErrAgentUnavailable
	}

	for {
		var res agentResponse
		if err := conn.ReadJSON(&res); err != nil {
			return "", fmt.Errorf("eds: agent read: %w", err)
		}

		// Первое сообщение агента — приветствие с номером версии.
		if res.Code == "" && isVersionGreeting(res.Result) {
			continue
		}

		switch res.Code {
		case "200":
			if sig := signatureOf(res); sig != "" {
				return sig, nil
			}
			return "", errors.New("eds: agent returned empty signature")
		case "100":
			return "", ErrSigningCancelled
		default:
			if res.Message != "" {
				return "", fmt.Errorf("eds: agent error: %s", res.Message)
			}
			return "", fmt.Errorf("eds: agent error code %q", res.Code)
		}
	}
}

func isVersionGreeting(raw json.RawMessage) bool {
	var v struct {
		Version string `json:"version"`
	}
	return json.Unmarshal(raw, &v) == nil && v.Version != ""
}

// signatureOf достаёт подпись: разные версии агента кладут её то в
// responseObject, то прямо в result.
func signatureOf(res agentResponse) string {
	if res.ResponseObject != "" {
		return res.ResponseObject
	}
	var s string
	if err := json.Unmarshal(res.Result, &s); err == nil {
		return s
	}
	return ""
}
