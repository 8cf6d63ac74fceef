package panels

import (
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/koios/trmnl-renderer/pkg/models"
	"github.com/skip2/go-qrcode"
)

// JoinWifiName is the registry name of the WiFi QR code panel
const JoinWifiName = "join-wifi"

type joinWifiSettings struct {
	Message    string `settings:"message"`
	SSID       string `settings:"ssid" validate:"required"`
	Password   string `settings:"password"`
	Hidden     bool   `settings:"hidden"`
	Encryption string `settings:"encryption" validate:"required,oneof=WEP WPA"`
}

var joinWifiTemplate = template.Must(template.New(JoinWifiName).Parse(`<div class="layout layout--col join-wifi-panel">
	<style>
		.join-wifi-panel__qr-code { display: block; width: 35%; height: auto; }
		.join-wifi-panel__message { margin-top: 10px; }
	</style>
	<img class="join-wifi-panel__qr-code" src="{{ .QRCode }}" alt="WiFi QR code" />
	{{- if .Message }}
	<p class="label text--black join-wifi-panel__message">{{ .Message }}</p>
	{{- end }}
</div>`))

// JoinWifi renders a QR code that joins a WiFi network when scanned
type JoinWifi struct {
	message string
	qrCode  template.URL
}

// NewJoinWifi is the Factory for JoinWifi
func NewJoinWifi() Panel {
	return &JoinWifi{}
}

var wifiEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `'`, `\'`, `;`, `\;`, `,`, `\,`, `:`, `\:`)

// wifiPayload builds the WIFI: URI understood by phone cameras
func wifiPayload(s joinWifiSettings) string {
	return fmt.Sprintf("WIFI:S:%s;T:%s;P:%s;H:%t;;",
		wifiEscaper.Replace(s.SSID), s.Encryption, wifiEscaper.Replace(s.Password), s.Hidden)
}

// Initialize validates the network settings and pre-renders the QR code
func (p *JoinWifi) Initialize(_ context.Context, settings map[string]any) error {
	var s joinWifiSettings
	if err := decodeSettings(settings, &s); err != nil {
		return err
	}

	png, err := qrcode.Encode(wifiPayload(s), qrcode.Low, 256)
	if err != nil {
		return fmt.Errorf("failed to encode QR code: %w", err)
	}

	p.message = s.Message
	p.qrCode = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
	return nil
}

// Render returns the QR code markup
func (p *JoinWifi) Render(_ context.Context) (models.PanelRender, error) {
	var b strings.Builder
	err := joinWifiTemplate.Execute(&b, struct {
		QRCode  template.URL
		Message string
	}{p.qrCode, p.message})
	if err != nil {
		return models.PanelRender{}, err
	}
	return models.PanelRender{HTML: b.String()}, nil
}
