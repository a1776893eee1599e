package services

import (
	"os"
	"path/filepath"
	"testing"

	"PosPrint/app/models"
)

func TestParseCUPSOutput(t *testing.T) {
	out := `printer Kitchen_TM20 is idle.  enabled since Mon 19 Oct 2026 09:00:00
printer Office is disabled since Mon 19 Oct 2026 08:00:00 -
system default destination: Kitchen_TM20
`
	printers := parseCUPSOutput(out)
	if len(printers) != 2 {
		t.Fatalf("got %d printers, want 2", len(printers))
	}
	if printers[0].Name != "Kitchen_TM20" || printers[0].Status != "online" || !printers[0].IsDefault {
		t.Errorf("first = %+v", printers[0])
	}
	if printers[1].Status != "offline" || printers[1].IsDefault {
		t.Errorf("second = %+v", printers[1])
	}
}

func TestDetectDevices(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"lp0", "lp1", "rfcomm0", "sda"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0600); err != nil {
			t.Fatal(err)
		}
	}

	found := detectDevices(map[string]models.TransportType{
		filepath.Join(dir, "lp*"):     models.TransportUSB,
		filepath.Join(dir, "rfcomm*"): models.TransportBluetooth,
	})
	if len(found) != 3 {
		t.Fatalf("found %d devices, want 3: %+v", len(found), found)
	}
	if found[0].Name != "lp0" || found[0].Transport != models.TransportUSB {
		t.Errorf("first = %+v", found[0])
	}
	if found[2].Name != "rfcomm0" || found[2].Transport != models.TransportBluetooth {
		t.Errorf("last = %+v", found[2])
	}
}
