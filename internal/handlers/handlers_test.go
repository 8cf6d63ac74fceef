package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/koios/trmnl-renderer/internal/device"
	"github.com/koios/trmnl-renderer/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testAddress  = "AA:BB:CC:DD:EE:FF"
	testKey      = "0123456789abcdef"
	testAdminKey = "admin-secret"
)

type stubRenderer struct {
	calls    []string
	viewport models.Viewport
	bitDepth int
	failed   bool
	err      error
}

func (s *stubRenderer) RenderScreen(_ context.Context, screen models.Screen, viewport models.Viewport, bitDepth int) (*models.ScreenRender, error) {
	s.calls = append(s.calls, screen.ScreenID())
	s.viewport = viewport
	s.bitDepth = bitDepth
	if s.err != nil {
		return nil, s.err
	}
	return &models.ScreenRender{
		ScreenID: screen.ScreenID(),
		File:     screen.ScreenID() + ".png",
		Token:    "token-" + screen.ScreenID(),
		Duration: screen.DisplayDuration(),
		Failed:   s.failed,
	}, nil
}

type stubReferences struct {
	stored map[string][]byte
}

func (s *stubReferences) UpdateReferenceImage(name string, data []byte) error {
	if strings.Contains(name, "..") {
		return errors.New("invalid name")
	}
	s.stored[name] = data
	return nil
}

func newTestServer(t *testing.T, renderer *stubRenderer) (*echo.Echo, *device.Registry, *stubReferences) {
	t.Helper()

	registry := device.NewRegistry(nil, zap.NewNop())
	registry.RegisterDevices([]models.DeviceDefinition{{
		ID:         "kitchen",
		Address:    testAddress,
		Key:        testKey,
		BitDepth:   2,
		AutoUpdate: true,
		Screens: []models.Screen{
			&models.ReferencedScreen{ID: "first", Image: "welcome", Duration: 5 * time.Minute},
			&models.ComposedScreen{ID: "second", Layout: "P1Full", Duration: time.Minute},
		},
	}})

	refs := &stubReferences{stored: make(map[string][]byte)}

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop())
	NewDeviceHandler(registry, renderer, models.Viewport{Width: 800, Height: 480}, zap.NewNop()).
		RegisterRoutes(e, t.TempDir())
	NewAdminHandler(registry, refs, nil, []string{testAdminKey}, zap.NewNop()).RegisterRoutes(e)

	return e, registry, refs
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func displayRequest(key string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/display", nil)
	req.Host = "trmnl.local"
	req.Header.Set(HeaderAddress, testAddress)
	req.Header.Set(HeaderAccessToken, key)
	return req
}

func TestHandleSetup(t *testing.T) {
	e, registry, _ := newTestServer(t, &stubRenderer{})

	req := httptest.NewRequest(http.MethodGet, "/api/setup", nil)
	req.Header.Set(HeaderAddress, testAddress)
	req.Header.Set(HeaderModel, "og")
	req.Header.Set(HeaderFirmware, "1.4.2")
	rec := serve(e, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body setupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testKey, body.APIKey)
	assert.Equal(t, "kitchen", body.FriendlyID)

	dev, err := registry.Device(testAddress)
	require.NoError(t, err)
	assert.Equal(t, "og", dev.Model)
	assert.Equal(t, "1.4.2", dev.FirmwareVersion)
}

func TestHandleSetup_UnknownDevice(t *testing.T) {
	e, _, _ := newTestServer(t, &stubRenderer{})

	req := httptest.NewRequest(http.MethodGet, "/api/setup", nil)
	req.Header.Set(HeaderAddress, "00:00:00:00:00:00")
	rec := serve(e, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Device is not registered.")
}

func TestHandleDisplay(t *testing.T) {
	renderer := &stubRenderer{}
	e, registry, _ := newTestServer(t, renderer)

	req := displayRequest(testKey)
	req.Header.Set(HeaderBatteryVoltage, "4.2")
	req.Header.Set(HeaderRSSI, "-61")
	req.Header.Set(HeaderWidth, "640")
	rec := serve(e, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body displayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Status)
	assert.Equal(t, "http://trmnl.local/screens/first.png", body.ImageURL)
	assert.Equal(t, "token-first", body.Filename)
	assert.Equal(t, 300, body.RefreshRate)
	assert.False(t, body.UpdateFirmware)
	assert.Empty(t, body.FirmwareURL)

	assert.Equal(t, models.Viewport{Width: 640, Height: 480}, renderer.viewport)
	assert.Equal(t, 2, renderer.bitDepth)

	dev, err := registry.Device(testAddress)
	require.NoError(t, err)
	assert.Equal(t, 100, dev.BatteryPercent)
	assert.Equal(t, -61, dev.SignalStrength)
	assert.Equal(t, 0, dev.RotationCursor)

	rec = serve(e, displayRequest(testKey))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = serve(e, displayRequest(testKey))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"first", "second", "first"}, renderer.calls)
}

func TestHandleDisplay_Unauthorized(t *testing.T) {
	renderer := &stubRenderer{}
	e, registry, _ := newTestServer(t, renderer)

	tests := []struct {
		name    string
		address string
		key     string
	}{
		{"wrong key", testAddress, "not-the-key"},
		{"missing key", testAddress, ""},
		{"unknown address", "00:00:00:00:00:00", testKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := displayRequest(tt.key)
			req.Header.Set(HeaderAddress, tt.address)
			rec := serve(e, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "Device is not authorized.")
		})
	}

	assert.Empty(t, renderer.calls)
	dev, err := registry.Device(testAddress)
	require.NoError(t, err)
	assert.Equal(t, -1, dev.RotationCursor)
}

func TestHandleDisplay_RenderFailure(t *testing.T) {
	e, _, _ := newTestServer(t, &stubRenderer{err: models.ErrRasterizationFailed})

	rec := serve(e, displayRequest(testKey))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Screen could not be rendered.")
}

func TestHandleDisplay_RecordsLastError(t *testing.T) {
	renderer := &stubRenderer{failed: true}
	e, registry, _ := newTestServer(t, renderer)

	rec := serve(e, displayRequest(testKey))
	require.Equal(t, http.StatusOK, rec.Code)

	dev, err := registry.Device(testAddress)
	require.NoError(t, err)
	assert.Equal(t, degradedRenderMessage, dev.LastError)

	renderer.failed = false
	rec = serve(e, displayRequest(testKey))
	require.Equal(t, http.StatusOK, rec.Code)

	dev, err = registry.Device(testAddress)
	require.NoError(t, err)
	assert.Empty(t, dev.LastError)

	renderer.err = models.ErrRasterizationFailed
	rec = serve(e, displayRequest(testKey))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	dev, err = registry.Device(testAddress)
	require.NoError(t, err)
	assert.Equal(t, models.ErrRasterizationFailed.Error(), dev.LastError)
}

func TestHandleLog(t *testing.T) {
	e, _, _ := newTestServer(t, &stubRenderer{})

	req := httptest.NewRequest(http.MethodPost, "/api/log", strings.NewReader(`{"logs":["wifi connected",{"code":3}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(HeaderAddress, testAddress)
	req.Header.Set(HeaderAccessToken, testKey)
	rec := serve(e, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/log", strings.NewReader(`{"logs":[]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(HeaderAddress, testAddress)
	rec = serve(e, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	e, _, _ := newTestServer(t, &stubRenderer{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["devices"])
}

func TestAdminDeviceStatus(t *testing.T) {
	e, _, _ := newTestServer(t, &stubRenderer{})

	req := httptest.NewRequest(http.MethodGet, "/admin/"+testAddress+"/status", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testAdminKey)
	rec := serve(e, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var dev models.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dev))
	assert.Equal(t, "kitchen", dev.ID)

	req = httptest.NewRequest(http.MethodGet, "/admin/00:00:00:00:00:00/status", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testAdminKey)
	rec = serve(e, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/"+testAddress+"/status", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer wrong")
	rec = serve(e, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/"+testAddress+"/status", nil)
	rec = serve(e, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestAdminUpdateReference(t *testing.T) {
	e, _, refs := newTestServer(t, &stubRenderer{})

	req := httptest.NewRequest(http.MethodPut, "/admin/references/welcome", strings.NewReader("png-bytes"))
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testAdminKey)
	rec := serve(e, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("png-bytes"), refs.stored["welcome"])

	req = httptest.NewRequest(http.MethodPut, "/admin/references/empty", strings.NewReader(""))
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+testAdminKey)
	rec = serve(e, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIsAuthorizedAdmin(t *testing.T) {
	h := NewAdminHandler(nil, nil, nil, []string{"one", "two"}, zap.NewNop())

	assert.True(t, h.IsAuthorizedAdmin("one"))
	assert.True(t, h.IsAuthorizedAdmin("two"))
	assert.False(t, h.IsAuthorizedAdmin("three"))
	assert.False(t, h.IsAuthorizedAdmin(""))

	none := NewAdminHandler(nil, nil, nil, nil, zap.NewNop())
	assert.False(t, none.IsAuthorizedAdmin("one"))
}

func TestReadTelemetry(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderModel, "og")
	header.Set(HeaderBatteryVoltage, "not-a-number")

	tel := readTelemetry(header)
	require.NotNil(t, tel.Model)
	assert.Equal(t, "og", *tel.Model)
	assert.Nil(t, tel.FirmwareVersion)
	assert.Nil(t, tel.BatteryVoltage)
	assert.Nil(t, tel.SignalStrength)
}
