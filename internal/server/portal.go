package server

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/muurk/poolctl/internal/discovery"
	"github.com/muurk/poolctl/internal/logging"
	"github.com/muurk/poolctl/internal/wifi"
	"go.uber.org/zap"
)

var portalPage = template.Must(template.New("portal").Parse(`<!DOCTYPE html>
<html>
<head>
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Name}} Wi-Fi setup</title>
</head>
<body>
<h1>{{.Name}}</h1>
<p>Status: <span id="status">{{.Status}}</span></p>
<form method="POST" action="/connect">
<label>Network <input name="ssid" list="networks" maxlength="32" required></label>
<datalist id="networks">{{range .Networks}}<option value="{{.SSID}}">{{end}}</datalist>
<label>Password <input name="secret" type="password" maxlength="63"></label>
<button type="submit">Connect</button>
</form>
<script>
var ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = function (e) {
  var f = JSON.parse(e.data);
  if (f.slot === "status") { document.getElementById("status").textContent = f.value; }
};
</script>
</body>
</html>
`))

// Portal is the captive-portal web server run on the soft-AP
type Portal struct {
	*base
	name string
}

// NewPortal returns a stopped portal
func NewPortal(config Config) *Portal {
	return &Portal{base: newBase(config, discovery.PortalService)}
}

func (p *Portal) networks() []wifi.Network {
	var networks []wifi.Network
	if raw, ok := p.hub.lastValue(SlotNetworks); ok {
		_ = json.Unmarshal([]byte(raw), &networks)
	}
	return networks
}

// Handler returns the HTTP handler of the portal; write receives slot writes
func (p *Portal) Handler(write WriteFunc) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Captive-portal probes hit arbitrary paths; all of them get the form
		status, _ := p.hub.lastValue(SlotStatus)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := portalPage.Execute(w, struct {
			Name     string
			Status   string
			Networks []wifi.Network
		}{p.name, status, p.networks()})
		if err != nil {
			logging.Warn("Failed to render portal page", zap.Error(err))
		}
	})

	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, int64(p.config.MaxPayload))
		if err := r.ParseForm(); err != nil {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return
		}

		ssid := strings.TrimSpace(r.PostForm.Get("ssid"))
		if ssid == "" {
			http.Error(w, "network name is required", http.StatusBadRequest)
			return
		}

		logging.Info("Portal credentials submitted",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("ssid", ssid),
		)
		write(SlotSSID, ssid)
		write(SlotSecret, r.PostForm.Get("secret"))

		http.Redirect(w, r, "/", http.StatusSeeOther)
	})

	mux.HandleFunc("/networks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("rescan") == "1" {
			write(SlotScan, "")
		}
		raw, ok := p.hub.lastValue(SlotNetworks)
		if !ok {
			raw = "[]"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(raw))
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		p.hub.serve(w, r, write)
	})

	return mux
}

// Start serves the portal and advertises it as name
func (p *Portal) Start(name string, write WriteFunc) error {
	p.name = name
	txt := []string{"id=" + p.config.DeviceID, "path=/"}
	if err := p.start(name, p.Handler(write), txt); err != nil {
		return err
	}
	p.hub.notify(SlotStatus, "waiting")
	return nil
}

// Notify updates a slot value for the page and every status socket
func (p *Portal) Notify(slot, value string) {
	p.hub.notify(slot, value)
}

// Stop shuts the portal down
func (p *Portal) Stop() error {
	return p.stop()
}

// Addr returns the bound address, or "" when stopped
func (p *Portal) Addr() string {
	return p.addr()
}
