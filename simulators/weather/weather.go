// Package weather feeds live weather observations into the registers of
// a simulated Lufft WS501 smart weather sensor. Observations come from
// the OpenWeatherMap API and land in the sensor's native input register
// layout, scaled the way the real instrument scales them.
package weather

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"math"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thinkgos/modsim"
)

// DefaultRefresh is the slowest cadence the free API tier tolerates.
const DefaultRefresh = 11 * time.Minute

const defaultBaseURL = "http://api.openweathermap.org/data/2.5"

// Precipitation type codes of the WS family.
const (
	PrecipNone = 0
	PrecipRain = 60
	PrecipSnow = 70
)

// stationCodes maps a WS model name to the high byte of the
// identification register.
var stationCodes = map[string]uint16{
	"WS100-UMB": 1, "WS200-UMB": 2, "WS300-UMB": 3, "WS400-UMB": 4,
	"WS500-UMB": 5, "WS600-UMB": 6, "WS700-UMB": 7, "WS800-UMB": 8,
	"WS301-UMB": 13, "WS302-UMB": 23, "WS303-UMB": 33, "WS304-UMB": 43,
	"WS310-UMB": 93, "WS501-UMB": 15, "WS502-UMB": 25, "WS503-UMB": 35,
	"WS504-UMB": 45, "WS510-UMB": 95, "WS401-UMB": 14, "WS601-UMB": 16,
}

// Input register addresses of the sensor's measurement table.
const (
	regIdentification = 0
	regHumidity       = 10
	regPressure       = 14
	regWindDirection  = 18
	regPrecipType     = 25
	regRadiation      = 27
	regTemperature    = 31
	regDewPoint       = 35
	regPrecipAbs      = 48
	regPrecipIntens   = 50
	regWindSpeedMax   = 85
	regWindSpeedAvg   = 86
)

// Holding register addresses of the sensor's configuration table.
const (
	regAltitude     = 0
	regResetRain    = 7
	regDeviceReset  = 8
	avgIntervalBase = 2 // hr 2..5, one per measurement group
)

// scale is the register scaling factor per measurement address. Values
// land in the registers pre-multiplied, the instrument's convention.
var scale = map[uint32]float64{
	regHumidity:      10,
	regPressure:      10,
	regWindDirection: 10,
	regRadiation:     10,
	regTemperature:   10,
	regDewPoint:      10,
	regPrecipAbs:     100,
	regPrecipIntens:  100,
	regWindSpeedMax:  100,
	regWindSpeedAvg:  100,
}

type point struct {
	class   modsim.RegisterClass
	address uint32
}

// Station simulates the weather sensor: it polls the weather API on its
// own cadence and caches the register image for the updater to mirror.
type Station struct {
	model    string
	version  uint16
	location string
	apiKey   string
	refresh  time.Duration
	baseURL  string
	client   *http.Client
	logger   *log.Logger

	mu      sync.RWMutex
	cache   map[point]float64
	running uint32
	done    chan struct{}
}

// Option configures a Station.
type Option func(*Station)

// WithCoordinates points the station at a lat/lon position.
func WithCoordinates(lat, lon float64) Option {
	return func(sf *Station) { sf.location = fmt.Sprintf("lat=%v&lon=%v", lat, lon) }
}

// WithCity points the station at a "City,CC" place name.
func WithCity(city string) Option {
	return func(sf *Station) { sf.location = "q=" + city }
}

// WithAPIKey sets the OpenWeatherMap subscription key.
func WithAPIKey(key string) Option {
	return func(sf *Station) { sf.apiKey = key }
}

// WithRefresh sets the poll cadence, floored at DefaultRefresh against
// the live API.
func WithRefresh(d time.Duration) Option {
	return func(sf *Station) {
		if d > 0 {
			sf.refresh = d
		}
	}
}

// WithBaseURL points the station at another API endpoint.
func WithBaseURL(u string) Option {
	return func(sf *Station) {
		sf.baseURL = u
		// a private endpoint has no rate limit to respect
		if sf.refresh == 0 {
			sf.refresh = time.Second
		}
	}
}

// WithModel sets the simulated WS model and software version.
func WithModel(model string, version uint16) Option {
	return func(sf *Station) {
		sf.model = model
		sf.version = version
	}
}

// New creates a WS501 station at the default location.
func New(opts ...Option) *Station {
	sf := &Station{
		model:    "WS501-UMB",
		version:  1,
		location: "lat=45.285352&lon=-75.848489",
		baseURL:  defaultBaseURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   log.New(os.Stderr, "weather station => ", log.LstdFlags),
		cache:    make(map[point]float64),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(sf)
	}
	if sf.refresh == 0 {
		sf.refresh = DefaultRefresh
	}
	sf.seed()
	return sf
}

// seed writes the static identification and configuration registers.
func (sf *Station) seed() {
	sf.set(modsim.InputRegister, regIdentification, float64(stationCodes[sf.model]<<8|sf.version))
	for i := uint32(0); i < 4; i++ {
		sf.set(modsim.HoldingRegister, avgIntervalBase+i, 1)
	}
	sf.set(modsim.HoldingRegister, regAltitude, 0)
	sf.set(modsim.HoldingRegister, regResetRain, 0)
	sf.set(modsim.HoldingRegister, regDeviceReset, 0)
}

// Run starts the refresh loop. Recognized params: location, apiKey,
// refresh (a duration string).
func (sf *Station) Run(params map[string]string) error {
	if v := params["location"]; v != "" {
		sf.location = v
	}
	if v := params["apiKey"]; v != "" {
		sf.apiKey = v
	}
	if v := params["refresh"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("weather: bad refresh %q: %v", v, err)
		}
		sf.refresh = d
	}
	if sf.baseURL == defaultBaseURL && sf.refresh < DefaultRefresh {
		sf.refresh = DefaultRefresh
	}
	if !atomic.CompareAndSwapUint32(&sf.running, 0, 1) {
		return nil
	}
	go sf.loop()
	return nil
}

// Stop halts the refresh loop.
func (sf *Station) Stop() {
	if atomic.CompareAndSwapUint32(&sf.running, 1, 0) {
		close(sf.done)
	}
}

func (sf *Station) loop() {
	if err := sf.refreshOnce(); err != nil {
		sf.logger.Printf("refresh: %v", err)
	}
	tk := time.NewTicker(sf.refresh)
	defer tk.Stop()
	for {
		select {
		case <-sf.done:
			return
		case <-tk.C:
			if err := sf.refreshOnce(); err != nil {
				sf.logger.Printf("refresh: %v", err)
			}
		}
	}
}

// Read returns the cached raw register value, 0 for an address the
// station never produced.
func (sf *Station) Read(class modsim.RegisterClass, address uint32) (float64, error) {
	sf.mu.RLock()
	defer sf.mu.RUnlock()
	return sf.cache[point{class, address}], nil
}

// Write pushes a raw register value into the cache. Writing the rain
// reset or device reset register zeroes the absolute precipitation
// counter, like the instrument does.
func (sf *Station) Write(class modsim.RegisterClass, address uint32, value float64) error {
	sf.mu.Lock()
	sf.cache[point{class, address}] = value
	if class == modsim.HoldingRegister && (address == regResetRain || address == regDeviceReset) && value != 0 {
		sf.cache[point{modsim.InputRegister, regPrecipAbs}] = 0
	}
	sf.mu.Unlock()
	return nil
}

func (sf *Station) set(class modsim.RegisterClass, address uint32, value float64) {
	sf.mu.Lock()
	sf.cache[point{class, address}] = value
	sf.mu.Unlock()
}

// measure stores an engineering-unit value into a measurement register,
// applying the register's scaling factor.
func (sf *Station) measure(address uint32, value float64) {
	if f, ok := scale[address]; ok {
		value = math.Trunc(value * f)
	}
	sf.set(modsim.InputRegister, address, value)
}

type weatherResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Pressure float64 `json:"pressure"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Rain map[string]float64 `json:"rain"`
	Snow map[string]float64 `json:"snow"`
}

type uvResponse struct {
	Value float64 `json:"value"`
}

// refreshOnce polls the API and rewrites the measurement registers.
func (sf *Station) refreshOnce() error {
	var wr weatherResponse
	url := fmt.Sprintf("%s/weather?%s&units=metric&APPID=%s", sf.baseURL, sf.location, sf.apiKey)
	if err := sf.fetch(url, &wr); err != nil {
		return err
	}
	var uv uvResponse
	url = fmt.Sprintf("%s/uvi?%s&appid=%s", sf.baseURL, sf.location, sf.apiKey)
	if err := sf.fetch(url, &uv); err != nil {
		return err
	}

	sf.measure(regTemperature, wr.Main.Temp)
	sf.measure(regHumidity, wr.Main.Humidity)
	sf.measure(regPressure, wr.Main.Pressure)
	sf.measure(regWindDirection, wr.Wind.Deg)
	kph := wr.Wind.Speed * 3.6
	sf.measure(regWindSpeedAvg, kph)
	sf.measure(regWindSpeedMax, kph)
	// simple approximation, Tdp = T - (100 - RH)/5
	sf.measure(regDewPoint, math.Trunc(wr.Main.Temp-(100-wr.Main.Humidity)/5))
	// W/m^2 from the UV index
	sf.measure(regRadiation, uv.Value/40)

	intensity, precipType := 0.0, float64(PrecipNone)
	if v, ok := wr.Rain["1h"]; ok {
		intensity, precipType = v, PrecipRain
	} else if v, ok := wr.Snow["1h"]; ok {
		intensity, precipType = v, PrecipSnow
	}
	sf.measure(regPrecipIntens, intensity)
	sf.measure(regPrecipType, precipType)

	sf.mu.Lock()
	sf.cache[point{modsim.InputRegister, regPrecipAbs}] += math.Trunc(intensity * scale[regPrecipAbs])
	sf.mu.Unlock()
	return nil
}

func (sf *Station) fetch(url string, into interface{}) error {
	resp, err := sf.client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weather: %s answered %s", sf.baseURL, resp.Status)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, into)
}

// Descriptors returns the template lines matching the station's register
// layout, ready to feed a slave context without an external template.
func Descriptors() string {
	return `/**DEVICE_DESC;VendorName=Lufft;ProductCode=WS501;VendorUrl=https://www.lufft.com;ProductName=Smart Weather Sensor;ModelName=WS501-UMB;MajorMinorRevision=1.0;sparse
/**SIM_PORT;port=tcp:502;mode=tcp;baudRate=19200;dataBits=8;parity=even;stopBits=1
deviceId=1;networkId=1;plcBaseAddress=0;byteOrder=msb;wordOrder=msw
/*REGISTER;paramId=1;name=Identification
paramId=1;deviceId=1;registerType=analog;address=0;encoding=uint16
/*REGISTER;paramId=2;name=RelativeHumidity;min=0;max=1000
paramId=2;deviceId=1;registerType=analog;address=10;encoding=int16
/*REGISTER;paramId=3;name=AirPressure;min=3000;max=12000
paramId=3;deviceId=1;registerType=analog;address=14;encoding=int16
/*REGISTER;paramId=4;name=WindDirection;min=0;max=3599
paramId=4;deviceId=1;registerType=analog;address=18;encoding=int16
/*REGISTER;paramId=5;name=PrecipitationType
paramId=5;deviceId=1;registerType=analog;address=25;encoding=int16
/*REGISTER;paramId=6;name=GlobalRadiation;min=0;max=20000
paramId=6;deviceId=1;registerType=analog;address=27;encoding=int16
/*REGISTER;paramId=7;name=AirTemperature;min=-500;max=600
paramId=7;deviceId=1;registerType=analog;address=31;encoding=int16
/*REGISTER;paramId=8;name=DewPoint;min=-500;max=600
paramId=8;deviceId=1;registerType=analog;address=35;encoding=int16
/*REGISTER;paramId=9;name=PrecipitationAbs
paramId=9;deviceId=1;registerType=analog;address=48;encoding=uint16
/*REGISTER;paramId=10;name=PrecipitationIntensity
paramId=10;deviceId=1;registerType=analog;address=50;encoding=uint16
/*REGISTER;paramId=11;name=WindSpeedMax
paramId=11;deviceId=1;registerType=analog;address=85;encoding=uint16
/*REGISTER;paramId=12;name=WindSpeedAvg
paramId=12;deviceId=1;registerType=analog;address=86;encoding=uint16
/*REGISTER;paramId=13;name=LocalAltitude
paramId=13;deviceId=1;registerType=holding;address=0;encoding=uint16
/*REGISTER;paramId=14;name=AveragingTFF;default=1
paramId=14;deviceId=1;registerType=holding;address=2;encoding=uint16
/*REGISTER;paramId=15;name=AveragingPressure;default=1
paramId=15;deviceId=1;registerType=holding;address=3;encoding=uint16
/*REGISTER;paramId=16;name=AveragingWind;default=1
paramId=16;deviceId=1;registerType=holding;address=4;encoding=uint16
/*REGISTER;paramId=17;name=AveragingRadiation;default=1
paramId=17;deviceId=1;registerType=holding;address=5;encoding=uint16
/*REGISTER;paramId=18;name=ResetAbsRain
paramId=18;deviceId=1;registerType=holding;address=7;encoding=uint16
/*REGISTER;paramId=19;name=DeviceReset
paramId=19;deviceId=1;registerType=holding;address=8;encoding=uint16
`
}
