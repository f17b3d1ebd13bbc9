package pm

import "testing"

func namedCallback(name string, log *[]string) Callback {
	return func(_ *Device, _ Event) error {
		*log = append(*log, name)
		return nil
	}
}

func TestResolve_LayerPriority(t *testing.T) {
	var log []string
	dev := &Device{
		Name:   "layered",
		Domain: &PowerDomain{Ops: &Ops{Suspend: namedCallback("domain", &log)}},
		Type:   &DeviceType{Ops: &Ops{Suspend: namedCallback("type", &log)}},
		Class:  &DeviceClass{Ops: &Ops{Suspend: namedCallback("class", &log)}},
		Bus:    &Bus{Ops: &Ops{Suspend: namedCallback("bus", &log)}},
		Driver: &Driver{Ops: &Ops{Suspend: namedCallback("driver", &log)}},
	}

	t.Run("power domain wins", func(t *testing.T) {
		cb, layer := resolve(dev, phaseSuspend)
		if layer != "power domain" {
			t.Fatalf("layer = %q, want power domain", layer)
		}
		log = log[:0]
		cb(dev, EventSuspend)
		if len(log) != 1 || log[0] != "domain" {
			t.Errorf("invoked %v, want [domain]", log)
		}
	})

	t.Run("type next", func(t *testing.T) {
		dev.Domain = nil
		_, layer := resolve(dev, phaseSuspend)
		if layer != "type" {
			t.Errorf("layer = %q, want type", layer)
		}
	})

	t.Run("class next", func(t *testing.T) {
		dev.Type = nil
		_, layer := resolve(dev, phaseSuspend)
		if layer != "class" {
			t.Errorf("layer = %q, want class", layer)
		}
	})

	t.Run("bus next", func(t *testing.T) {
		dev.Class = nil
		_, layer := resolve(dev, phaseSuspend)
		if layer != "bus" {
			t.Errorf("layer = %q, want bus", layer)
		}
	})

	t.Run("driver last", func(t *testing.T) {
		dev.Bus = nil
		_, layer := resolve(dev, phaseSuspend)
		if layer != "driver" {
			t.Errorf("layer = %q, want driver", layer)
		}
	})
}

func TestResolve_DriverFallback(t *testing.T) {
	var log []string
	dev := &Device{
		Name: "fallback",
		// Domain present but with no slot for the phase.
		Domain: &PowerDomain{Ops: &Ops{Suspend: namedCallback("domain", &log)}},
		Driver: &Driver{Ops: &Ops{SuspendLate: namedCallback("driver-late", &log)}},
	}

	cb, layer := resolve(dev, phaseSuspendLate)
	if layer != "driver" {
		t.Fatalf("layer = %q, want driver", layer)
	}
	cb(dev, EventSuspend)
	if len(log) != 1 || log[0] != "driver-late" {
		t.Errorf("invoked %v, want [driver-late]", log)
	}
}

func TestResolve_LegacyHooks(t *testing.T) {
	var log []string
	dev := &Device{
		Name: "legacy",
		Class: &DeviceClass{
			LegacySuspend: LegacyCallback(namedCallback("class-suspend", &log)),
			LegacyResume:  LegacyCallback(namedCallback("class-resume", &log)),
		},
		Bus: &Bus{
			LegacySuspend: LegacyCallback(namedCallback("bus-suspend", &log)),
		},
		Driver: &Driver{Ops: &Ops{Suspend: namedCallback("driver", &log)}},
	}

	t.Run("class legacy beats bus and driver", func(t *testing.T) {
		cb, layer := resolve(dev, phaseSuspend)
		if layer != "legacy class" {
			t.Fatalf("layer = %q, want legacy class", layer)
		}
		log = log[:0]
		cb(dev, EventSuspend)
		if len(log) != 1 || log[0] != "class-suspend" {
			t.Errorf("invoked %v, want [class-suspend]", log)
		}
	})

	t.Run("bus legacy when class has no matching hook", func(t *testing.T) {
		dev.Class.LegacySuspend = nil
		dev.Class.LegacyResume = nil
		_, layer := resolve(dev, phaseSuspend)
		if layer != "legacy bus" {
			t.Errorf("layer = %q, want legacy bus", layer)
		}
	})

	t.Run("legacy hooks never serve the inner phases", func(t *testing.T) {
		cb, layer := resolve(dev, phaseSuspendNoIRQ)
		if cb != nil || layer != "" {
			t.Errorf("resolve(noirq) = %q, want nothing", layer)
		}
	})
}

func TestResolve_PrepareAndComplete(t *testing.T) {
	var ran []string
	dev := &Device{
		Name: "pc",
		Bus: &Bus{Ops: &Ops{
			Prepare: func(_ *Device, _ Event) (bool, error) {
				ran = append(ran, "bus-prepare")
				return false, nil
			},
		}},
		Driver: &Driver{Ops: &Ops{
			Complete: func(_ *Device, _ Event) { ran = append(ran, "driver-complete") },
		}},
	}

	if fn, layer := resolvePrepare(dev); layer != "bus" || fn == nil {
		t.Errorf("resolvePrepare layer = %q, want bus", layer)
	}
	if fn, layer := resolveComplete(dev); layer != "driver" || fn == nil {
		t.Errorf("resolveComplete layer = %q, want driver", layer)
	}
}

func TestHasCallbacks(t *testing.T) {
	tests := []struct {
		name string
		dev  *Device
		want bool
	}{
		{"bare device", &Device{Name: "bare"}, false},
		{"empty layers", &Device{Name: "empty", Bus: &Bus{}, Driver: &Driver{}}, false},
		{"driver ops", &Device{Name: "drv", Driver: &Driver{Ops: &Ops{Resume: func(*Device, Event) error { return nil }}}}, true},
		{"legacy only", &Device{Name: "leg", Bus: &Bus{LegacyResume: func(*Device, Event) error { return nil }}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasCallbacks(tt.dev); got != tt.want {
				t.Errorf("hasCallbacks() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceWithoutCallbacksAvoidsDispatch(t *testing.T) {
	e := New(Config{})
	quiet := &Device{Name: "quiet"}
	mustRegister(t, e, quiet)

	if err := e.DoSuspend(EventSuspend); err != nil {
		t.Fatalf("DoSuspend() error = %v", err)
	}
	// No callbacks means the device trivially qualifies for the
	// direct-complete skip.
	if !quiet.DirectComplete() {
		t.Error("DirectComplete() = false for a callback-less device")
	}
	if err := e.DoResume(EventResume); err != nil {
		t.Fatalf("DoResume() error = %v", err)
	}
	if got := quiet.state(); got != "active" {
		t.Errorf("state = %q, want active", got)
	}
}
