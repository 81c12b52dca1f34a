package openprinttag

import (
	"bytes"
	"testing"
)

func TestInputEncodeDecodeRoundTrip(t *testing.T) {
	in := &Input{
		MaterialName:     "Galaxy Black PLA",
		BrandName:        "Prusament",
		MaterialClass:    int(MaterialClassFFF),
		MaterialType:     int(MaterialTypePLA),
		NominalWeight:    1000,
		FilamentDiameter: 1.75,
		PrimaryColor:     "#1A1A2E",
		Density:          1.24,
		MinPrintTemp:     205,
		MaxPrintTemp:     225,
		ConsumedWeight:   250,
		Workgroup:        "print-farm-2",
	}

	payload, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	tag, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if tag.Main.MaterialName != in.MaterialName {
		t.Errorf("material name: got %q, want %q", tag.Main.MaterialName, in.MaterialName)
	}
	if tag.Main.BrandName != in.BrandName {
		t.Errorf("brand name: got %q, want %q", tag.Main.BrandName, in.BrandName)
	}
	if tag.Main.MaterialType != MaterialTypePLA {
		t.Errorf("material type: got %v, want PLA", tag.Main.MaterialType)
	}
	if tag.Main.NominalNettoFullWeight != 1000 {
		t.Errorf("nominal weight: got %v", tag.Main.NominalNettoFullWeight)
	}
	if tag.Aux.ConsumedWeight != 250 {
		t.Errorf("consumed weight: got %v", tag.Aux.ConsumedWeight)
	}
	if tag.Aux.Workgroup != "print-farm-2" {
		t.Errorf("workgroup: got %q", tag.Aux.Workgroup)
	}
	if len(tag.Main.PrimaryColor) != 3 {
		t.Fatalf("expected 3 color bytes, got %d", len(tag.Main.PrimaryColor))
	}
	if !bytes.Equal(tag.Main.PrimaryColor, []byte{0x1A, 0x1A, 0x2E}) {
		t.Errorf("unexpected color bytes: %x", tag.Main.PrimaryColor)
	}
}

func TestDecodeBareMainSection(t *testing.T) {
	// A payload written without a meta section is just the main map
	in := &Input{
		MaterialName:  "PETG",
		BrandName:     "Generic",
		MaterialClass: int(MaterialClassFFF),
		MaterialType:  int(MaterialTypePETG),
		NominalWeight: 750,
	}
	tag, err := in.Tag()
	if err != nil {
		t.Fatalf("Tag failed: %v", err)
	}
	mainOnly, err := encMode.Marshal(&tag.Main)
	if err != nil {
		t.Fatalf("marshal main: %v", err)
	}

	decoded, err := Decode(mainOnly)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Main.MaterialName != "PETG" {
		t.Errorf("unexpected material name: %q", decoded.Main.MaterialName)
	}
}

func TestDecodeToleratesTrailingPadding(t *testing.T) {
	in := &Input{
		MaterialName:  "PLA",
		BrandName:     "Generic",
		MaterialClass: int(MaterialClassFFF),
		NominalWeight: 1000,
	}
	payload, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// NFC tags zero-pad the NDEF area
	padded := append(payload, make([]byte, 32)...)
	tag, err := Decode(padded)
	if err != nil {
		t.Fatalf("Decode of padded payload failed: %v", err)
	}
	if tag.Main.MaterialName != "PLA" {
		t.Errorf("unexpected material name: %q", tag.Main.MaterialName)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestInputValidate(t *testing.T) {
	valid := Input{
		MaterialName:  "PLA",
		BrandName:     "Generic",
		MaterialClass: int(MaterialClassFFF),
		NominalWeight: 1000,
	}

	tests := []struct {
		name   string
		mutate func(*Input)
		ok     bool
	}{
		{"valid", func(*Input) {}, true},
		{"missing material name", func(i *Input) { i.MaterialName = "" }, false},
		{"missing brand name", func(i *Input) { i.BrandName = "" }, false},
		{"bad material class", func(i *Input) { i.MaterialClass = 7 }, false},
		{"zero weight", func(i *Input) { i.NominalWeight = 0 }, false},
		{"bad color", func(i *Input) { i.PrimaryColor = "#12" }, false},
		{"rgba color", func(i *Input) { i.PrimaryColor = "#11223344" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			err := in.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestUUIDDerivationIsDeterministic(t *testing.T) {
	a := GenerateBrandUUID("Prusament")
	b := GenerateBrandUUID("Prusament")
	if !bytes.Equal(a, b) {
		t.Error("brand UUID derivation is not deterministic")
	}
	if bytes.Equal(a, GenerateBrandUUID("Polymaker")) {
		t.Error("different brands derived the same UUID")
	}

	m1 := GenerateMaterialUUID("Prusament", "Galaxy Black PLA")
	m2 := GenerateMaterialUUID("Prusament", "Prusa Orange PLA")
	if bytes.Equal(m1, m2) {
		t.Error("different materials derived the same UUID")
	}
	if len(m1) != 16 {
		t.Errorf("expected 16 byte UUID, got %d", len(m1))
	}
}

func TestTagDerivesUUIDsWhenMissing(t *testing.T) {
	in := &Input{
		MaterialName:  "Galaxy Black PLA",
		BrandName:     "Prusament",
		MaterialClass: int(MaterialClassFFF),
		NominalWeight: 1000,
	}
	tag, err := in.Tag()
	if err != nil {
		t.Fatalf("Tag failed: %v", err)
	}

	if !bytes.Equal(tag.Main.BrandUUID, GenerateBrandUUID("Prusament")) {
		t.Error("brand UUID not derived from brand name")
	}
	if !bytes.Equal(tag.Main.MaterialUUID, GenerateMaterialUUID("Prusament", "Galaxy Black PLA")) {
		t.Error("material UUID not derived from brand + material name")
	}
	if len(tag.Main.InstanceUUID) != 16 {
		t.Errorf("expected generated instance UUID, got %d bytes", len(tag.Main.InstanceUUID))
	}
}

func TestSummary(t *testing.T) {
	tag := &Tag{}
	tag.Main.MaterialName = "Galaxy Black PLA"
	tag.Main.BrandName = "Prusament"
	tag.Main.MaterialClass = MaterialClassFFF
	tag.Main.MaterialType = MaterialTypePLA
	tag.Main.NominalNettoFullWeight = 1000
	tag.Main.PrimaryColor = []byte{0x1A, 0x1A, 0x2E}
	tag.Main.BrandUUID = GenerateBrandUUID("Prusament")
	tag.Aux.ConsumedWeight = 300

	s := tag.Summary()
	if s.MaterialClass != "FFF" || s.MaterialType != "PLA" {
		t.Errorf("unexpected class/type: %q/%q", s.MaterialClass, s.MaterialType)
	}
	if s.RemainingWeight != 700 {
		t.Errorf("expected remaining weight 700, got %v", s.RemainingWeight)
	}
	if s.PrimaryColor != "#1A1A2E" {
		t.Errorf("unexpected color: %q", s.PrimaryColor)
	}
	if len(s.BrandUUID) != 36 {
		t.Errorf("expected canonical UUID string, got %q", s.BrandUUID)
	}

	// Over-consumed spools clamp to zero instead of going negative
	tag.Aux.ConsumedWeight = 1500
	if got := tag.Summary().RemainingWeight; got != 0 {
		t.Errorf("expected clamped remaining weight 0, got %v", got)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
		ok   bool
	}{
		{"#FF8800", []byte{0xFF, 0x88, 0x00}, true},
		{"FF8800", []byte{0xFF, 0x88, 0x00}, true},
		{"#FF880042", []byte{0xFF, 0x88, 0x00, 0x42}, true},
		{"", nil, true},
		{"#F80", nil, false},
		{"#GGHHII", nil, false},
	}
	for _, tt := range tests {
		got, err := parseHexColor(tt.in)
		if tt.ok && err != nil {
			t.Errorf("parseHexColor(%q): unexpected error %v", tt.in, err)
			continue
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("parseHexColor(%q): expected error", tt.in)
			}
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("parseHexColor(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}
}
