package widget

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// GaugeDisplay mirrors the visible cart count into a Prometheus gauge.
type GaugeDisplay struct {
	gauge prometheus.Gauge
}

func NewGaugeDisplay(reg *prometheus.Registry) *GaugeDisplay {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cart_visible_items",
		Help: "Visible cart item count (add-on service lines excluded)",
	})
	reg.MustRegister(g)
	return &GaugeDisplay{gauge: g}
}

func (d *GaugeDisplay) SetCount(n int)  { d.gauge.Set(float64(n)) }
func (d *GaugeDisplay) SetVisible(bool) {}

// LogDisplay records count changes in the service log.
type LogDisplay struct {
	Log *zap.Logger
}

func (d *LogDisplay) SetCount(n int) {
	d.Log.Info("cart count updated", zap.Int("count", n))
}

func (d *LogDisplay) SetVisible(visible bool) {
	d.Log.Debug("cart badge visibility", zap.Bool("visible", visible))
}
