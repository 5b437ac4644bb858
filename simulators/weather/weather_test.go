package weather

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/thinkgos/modsim"
)

func apiStub(t *testing.T, weather, uv string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/weather"):
			fmt.Fprint(w, weather)
		case strings.HasPrefix(r.URL.Path, "/uvi"):
			fmt.Fprint(w, uv)
		default:
			http.NotFound(w, r)
		}
	}))
}

const sampleWeather = `{
	"main": {"temp": -16.0, "pressure": 1023, "humidity": 59},
	"wind": {"speed": 3.6, "deg": 60},
	"rain": {"1h": 2.5}
}`

const sampleUV = `{"value": 10.06}`

func read(t *testing.T, s *Station, class modsim.RegisterClass, address uint32) float64 {
	t.Helper()
	v, err := s.Read(class, address)
	if err != nil {
		t.Fatalf("Read(%v, %d) error = %v", class, address, err)
	}
	return v
}

func TestStationRefresh(t *testing.T) {
	api := apiStub(t, sampleWeather, sampleUV)
	defer api.Close()

	s := New(WithBaseURL(api.URL), WithAPIKey("test"))
	if err := s.refreshOnce(); err != nil {
		t.Fatalf("refreshOnce() error = %v", err)
	}

	tests := []struct {
		name    string
		address uint32
		want    float64
	}{
		{"temperature x10", regTemperature, -160},
		{"humidity x10", regHumidity, 590},
		{"pressure x10", regPressure, 10230},
		{"wind direction x10", regWindDirection, 600},
		{"wind speed kph x100", regWindSpeedAvg, 1296}, // 3.6 m/s * 3.6 = 12.96 km/h
		{"wind speed max mirrors avg", regWindSpeedMax, 1296},
		{"dew point", regDewPoint, -240}, // -16 - (100-59)/5 = -24.2, truncated then x10
		{"precip intensity x100", regPrecipIntens, 250},
		{"precip type rain", regPrecipType, PrecipRain},
		{"radiation", regRadiation, 2}, // 10.06 / 40 = 0.2515, x10 truncated
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := read(t, s, modsim.InputRegister, tt.address); got != tt.want {
				t.Errorf("register %d = %v, want %v", tt.address, got, tt.want)
			}
		})
	}
}

func TestStationIdentification(t *testing.T) {
	s := New()
	got := read(t, s, modsim.InputRegister, regIdentification)
	// WS501 type code 15 in the high byte, software version 1 in the low
	if want := float64(15<<8 | 1); got != want {
		t.Errorf("identification = %v, want %v", got, want)
	}

	s = New(WithModel("WS100-UMB", 3))
	got = read(t, s, modsim.InputRegister, regIdentification)
	if want := float64(1<<8 | 3); got != want {
		t.Errorf("identification = %v, want %v", got, want)
	}
}

func TestStationPrecipAccumulates(t *testing.T) {
	api := apiStub(t, sampleWeather, sampleUV)
	defer api.Close()

	s := New(WithBaseURL(api.URL))
	for i := 0; i < 3; i++ {
		if err := s.refreshOnce(); err != nil {
			t.Fatalf("refreshOnce() error = %v", err)
		}
	}
	if got := read(t, s, modsim.InputRegister, regPrecipAbs); got != 750 {
		t.Errorf("absolute precipitation = %v, want 750 after three refreshes", got)
	}

	// writing the rain reset register clears the counter
	if err := s.Write(modsim.HoldingRegister, regResetRain, 1); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := read(t, s, modsim.InputRegister, regPrecipAbs); got != 0 {
		t.Errorf("absolute precipitation after reset = %v, want 0", got)
	}
}

func TestStationSnow(t *testing.T) {
	snow := `{"main": {"temp": -5, "pressure": 1000, "humidity": 80}, "wind": {"speed": 1, "deg": 0}, "snow": {"1h": 1.2}}`
	api := apiStub(t, snow, sampleUV)
	defer api.Close()

	s := New(WithBaseURL(api.URL))
	if err := s.refreshOnce(); err != nil {
		t.Fatalf("refreshOnce() error = %v", err)
	}
	if got := read(t, s, modsim.InputRegister, regPrecipType); got != PrecipSnow {
		t.Errorf("precipitation type = %v, want snow (%d)", got, PrecipSnow)
	}
}

func TestStationUndeclaredAddressReadsZero(t *testing.T) {
	s := New()
	if got := read(t, s, modsim.InputRegister, 999); got != 0 {
		t.Errorf("undeclared register = %v, want 0", got)
	}
}

func TestStationAPIFailure(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer api.Close()

	s := New(WithBaseURL(api.URL))
	if err := s.refreshOnce(); err == nil {
		t.Fatal("refreshOnce() must fail on a non-200 answer")
	}
}

func TestStationRunParams(t *testing.T) {
	s := New(WithBaseURL("http://127.0.0.1:0"))
	if err := s.Run(map[string]string{"refresh": "bogus"}); err == nil {
		t.Fatal("Run() must reject a bad refresh duration")
	}
	if err := s.Run(map[string]string{"refresh": "30s", "apiKey": "k"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	defer s.Stop()
	if s.refresh.Seconds() != 30 {
		t.Errorf("refresh = %v, want 30s", s.refresh)
	}
	if err := s.Run(nil); err != nil {
		t.Errorf("second Run() must be a no-op, got %v", err)
	}
}

func TestStationDescriptorsTemplate(t *testing.T) {
	tpl, err := modsim.NewParser().Parse(strings.NewReader(Descriptors()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !tpl.Sparse {
		t.Error("the station layout is sparse")
	}
	if tpl.Network.PLCBaseAddress != 0 {
		t.Errorf("PLCBaseAddress = %d, want 0", tpl.Network.PLCBaseAddress)
	}
	if len(tpl.Descriptors) != 19 {
		t.Errorf("descriptors = %d, want 19", len(tpl.Descriptors))
	}
	slave, err := modsim.NewSlaveContext(tpl)
	if err != nil {
		t.Fatalf("NewSlaveContext() error = %v", err)
	}
	words, err := slave.GetValues(modsim.FuncCodeReadHoldingRegisters, avgIntervalBase, 1)
	if err != nil {
		t.Fatalf("GetValues() error = %v", err)
	}
	if words[0] != 1 {
		t.Errorf("averaging interval = %d, want the seeded 1", words[0])
	}
}
