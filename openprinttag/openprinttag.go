// Package openprinttag reads and builds OpenPrintTag payloads on the client
// side, so applications can interpret cards the agent reports and prepare
// write_card requests with dataType "openprinttag".
// See https://specs.openprinttag.org for the full specification; this package
// covers the subset of fields the agent round-trips.
package openprinttag

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// MIMEType identifies OpenPrintTag NDEF records.
const MIMEType = "application/vnd.openprinttag"

// MaxSectionSize is the maximum size for any section (512 bytes per spec).
const MaxSectionSize = 512

// MaterialClass enum values per OpenPrintTag spec.
type MaterialClass uint8

const (
	MaterialClassFFF MaterialClass = 0 // Fused Filament Fabrication
	MaterialClassSLA MaterialClass = 1 // Stereolithography (resin)
)

// MaterialType enum values for FFF materials.
type MaterialType uint8

const (
	MaterialTypePLA    MaterialType = 0
	MaterialTypeABS    MaterialType = 1
	MaterialTypePETG   MaterialType = 2
	MaterialTypeASA    MaterialType = 3
	MaterialTypePC     MaterialType = 4
	MaterialTypeNylon  MaterialType = 5
	MaterialTypeTPU    MaterialType = 6
	MaterialTypePVA    MaterialType = 7
	MaterialTypeHIPS   MaterialType = 8
	MaterialTypePP     MaterialType = 9
	MaterialTypePEI    MaterialType = 10
	MaterialTypePEEK   MaterialType = 11
	MaterialTypePA     MaterialType = 12
	MaterialTypePACF   MaterialType = 13
	MaterialTypePAGF   MaterialType = 14
	MaterialTypePLACF  MaterialType = 15
	MaterialTypePLAGF  MaterialType = 16
	MaterialTypePETGCF MaterialType = 17
	MaterialTypePETGGF MaterialType = 18
	MaterialTypeOther  MaterialType = 255
)

// MetaSection holds offsets and sizes for the other sections (keys 0-3).
type MetaSection struct {
	MainOffset uint16 `cbor:"0,keyasint,omitempty"`
	MainSize   uint16 `cbor:"1,keyasint,omitempty"`
	AuxOffset  uint16 `cbor:"2,keyasint,omitempty"`
	AuxSize    uint16 `cbor:"3,keyasint,omitempty"`
}

// MainSection holds the immutable material properties a client typically
// needs; integer keys per the OpenPrintTag spec.
type MainSection struct {
	// UUIDs (keys 0-3), raw 16-byte values
	InstanceUUID []byte `cbor:"0,keyasint,omitempty"`
	PackageUUID  []byte `cbor:"1,keyasint,omitempty"`
	MaterialUUID []byte `cbor:"2,keyasint,omitempty"`
	BrandUUID    []byte `cbor:"3,keyasint,omitempty"`

	// Identifiers (keys 4-7)
	GTIN                    uint64 `cbor:"4,keyasint,omitempty"`
	BrandSpecificInstanceID string `cbor:"5,keyasint,omitempty"`
	BrandSpecificPackageID  string `cbor:"6,keyasint,omitempty"`
	BrandSpecificMaterialID string `cbor:"7,keyasint,omitempty"`

	// Material classification (keys 8-11)
	MaterialClass MaterialClass `cbor:"8,keyasint,omitempty"`
	MaterialType  MaterialType  `cbor:"9,keyasint,omitempty"`
	MaterialName  string        `cbor:"10,keyasint,omitempty"`
	BrandName     string        `cbor:"11,keyasint,omitempty"`

	// Protection and dates (keys 13-15)
	WriteProtection  uint8  `cbor:"13,keyasint,omitempty"`
	ManufacturedDate uint32 `cbor:"14,keyasint,omitempty"` // Unix timestamp
	ExpirationDate   uint32 `cbor:"15,keyasint,omitempty"` // Unix timestamp

	// Weight data in grams (keys 16-18)
	NominalNettoFullWeight float32 `cbor:"16,keyasint,omitempty"`
	ActualNettoFullWeight  float32 `cbor:"17,keyasint,omitempty"`
	EmptyContainerWeight   float32 `cbor:"18,keyasint,omitempty"`

	// Primary color (key 19), RGB or RGBA bytes
	PrimaryColor []byte `cbor:"19,keyasint,omitempty"`

	// Physical properties (keys 29-30)
	Density          float32 `cbor:"29,keyasint,omitempty"`
	FilamentDiameter float32 `cbor:"30,keyasint,omitempty"`

	// Temperature settings in °C (keys 34-38)
	MinPrintTemp uint16 `cbor:"34,keyasint,omitempty"`
	MaxPrintTemp uint16 `cbor:"35,keyasint,omitempty"`
	PreheatTemp  uint16 `cbor:"36,keyasint,omitempty"`
	MinBedTemp   uint16 `cbor:"37,keyasint,omitempty"`
	MaxBedTemp   uint16 `cbor:"38,keyasint,omitempty"`

	// Additional metadata (keys 52-55)
	MaterialAbbreviation string `cbor:"52,keyasint,omitempty"`
	NominalFullLength    uint32 `cbor:"53,keyasint,omitempty"` // mm
	ActualFullLength     uint32 `cbor:"54,keyasint,omitempty"` // mm
	CountryOfOrigin      string `cbor:"55,keyasint,omitempty"`
}

// AuxSection holds mutable runtime data that printers update (keys 0-3).
type AuxSection struct {
	ConsumedWeight     float32 `cbor:"0,keyasint,omitempty"`
	Workgroup          string  `cbor:"1,keyasint,omitempty"`
	GeneralPurposeUser string  `cbor:"2,keyasint,omitempty"`
	LastStirTime       uint32  `cbor:"3,keyasint,omitempty"` // Unix timestamp (resin)
}

// Tag is a decoded OpenPrintTag payload.
type Tag struct {
	Meta MetaSection
	Main MainSection
	Aux  AuxSection
}

// Summary is the JSON-friendly view of a tag, convenient for UIs.
type Summary struct {
	MaterialName  string `json:"materialName,omitempty"`
	BrandName     string `json:"brandName,omitempty"`
	MaterialClass string `json:"materialClass,omitempty"`
	MaterialType  string `json:"materialType,omitempty"`

	InstanceUUID string `json:"instanceUuid,omitempty"`
	MaterialUUID string `json:"materialUuid,omitempty"`
	BrandUUID    string `json:"brandUuid,omitempty"`

	NominalWeight   float32 `json:"nominalWeight,omitempty"`
	ConsumedWeight  float32 `json:"consumedWeight,omitempty"`
	RemainingWeight float32 `json:"remainingWeight,omitempty"`

	PrimaryColor     string  `json:"primaryColor,omitempty"` // hex #RRGGBB or #RRGGBBAA
	FilamentDiameter float32 `json:"filamentDiameter,omitempty"`
	Density          float32 `json:"density,omitempty"`

	MinPrintTemp uint16 `json:"minPrintTemp,omitempty"`
	MaxPrintTemp uint16 `json:"maxPrintTemp,omitempty"`
	MinBedTemp   uint16 `json:"minBedTemp,omitempty"`
	MaxBedTemp   uint16 `json:"maxBedTemp,omitempty"`

	ManufacturedDate uint32 `json:"manufacturedDate,omitempty"`
	ExpirationDate   uint32 `json:"expirationDate,omitempty"`

	Workgroup string `json:"workgroup,omitempty"`
}

// Input is the JSON structure the agent accepts for openprinttag writes.
type Input struct {
	// Required fields
	MaterialName  string  `json:"materialName"`
	BrandName     string  `json:"brandName"`
	MaterialClass int     `json:"materialClass"`
	MaterialType  int     `json:"materialType"`
	NominalWeight float32 `json:"nominalWeight"`

	// Optional fields
	InstanceUUID     string  `json:"instanceUuid,omitempty"`
	MaterialUUID     string  `json:"materialUuid,omitempty"`
	BrandUUID        string  `json:"brandUuid,omitempty"`
	FilamentDiameter float32 `json:"filamentDiameter,omitempty"`
	PrimaryColor     string  `json:"primaryColor,omitempty"` // hex #RRGGBB or #RRGGBBAA
	Density          float32 `json:"density,omitempty"`
	MinPrintTemp     uint16  `json:"minPrintTemp,omitempty"`
	MaxPrintTemp     uint16  `json:"maxPrintTemp,omitempty"`
	ConsumedWeight   float32 `json:"consumedWeight,omitempty"`
	Workgroup        string  `json:"workgroup,omitempty"`
	ManufacturedDate uint32  `json:"manufacturedDate,omitempty"`
	ExpirationDate   uint32  `json:"expirationDate,omitempty"`
}

// Validate checks the required Input fields before a write request is sent,
// catching mistakes locally instead of burning a card write on them.
func (i *Input) Validate() error {
	if i.MaterialName == "" {
		return fmt.Errorf("materialName is required")
	}
	if i.BrandName == "" {
		return fmt.Errorf("brandName is required")
	}
	if i.MaterialClass != int(MaterialClassFFF) && i.MaterialClass != int(MaterialClassSLA) {
		return fmt.Errorf("materialClass must be 0 (FFF) or 1 (SLA)")
	}
	if i.NominalWeight <= 0 {
		return fmt.Errorf("nominalWeight must be positive")
	}
	if i.PrimaryColor != "" {
		if _, err := parseHexColor(i.PrimaryColor); err != nil {
			return err
		}
	}
	return nil
}

// Summary converts a decoded tag to its JSON-friendly view.
func (t *Tag) Summary() *Summary {
	s := &Summary{
		MaterialName:     t.Main.MaterialName,
		BrandName:        t.Main.BrandName,
		MaterialClass:    t.Main.MaterialClass.String(),
		MaterialType:     t.Main.MaterialType.String(),
		NominalWeight:    t.Main.NominalNettoFullWeight,
		ConsumedWeight:   t.Aux.ConsumedWeight,
		FilamentDiameter: t.Main.FilamentDiameter,
		Density:          t.Main.Density,
		MinPrintTemp:     t.Main.MinPrintTemp,
		MaxPrintTemp:     t.Main.MaxPrintTemp,
		MinBedTemp:       t.Main.MinBedTemp,
		MaxBedTemp:       t.Main.MaxBedTemp,
		ManufacturedDate: t.Main.ManufacturedDate,
		ExpirationDate:   t.Main.ExpirationDate,
		Workgroup:        t.Aux.Workgroup,
	}

	if t.Main.NominalNettoFullWeight > 0 {
		s.RemainingWeight = t.Main.NominalNettoFullWeight - t.Aux.ConsumedWeight
		if s.RemainingWeight < 0 {
			s.RemainingWeight = 0
		}
	}

	s.InstanceUUID = formatUUID(t.Main.InstanceUUID)
	s.MaterialUUID = formatUUID(t.Main.MaterialUUID)
	s.BrandUUID = formatUUID(t.Main.BrandUUID)
	s.PrimaryColor = colorToHex(t.Main.PrimaryColor)

	return s
}

func (mc MaterialClass) String() string {
	switch mc {
	case MaterialClassFFF:
		return "FFF"
	case MaterialClassSLA:
		return "SLA"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(mc))
	}
}

var materialTypeNames = map[MaterialType]string{
	MaterialTypePLA:    "PLA",
	MaterialTypeABS:    "ABS",
	MaterialTypePETG:   "PETG",
	MaterialTypeASA:    "ASA",
	MaterialTypePC:     "PC",
	MaterialTypeNylon:  "Nylon",
	MaterialTypeTPU:    "TPU",
	MaterialTypePVA:    "PVA",
	MaterialTypeHIPS:   "HIPS",
	MaterialTypePP:     "PP",
	MaterialTypePEI:    "PEI",
	MaterialTypePEEK:   "PEEK",
	MaterialTypePA:     "PA",
	MaterialTypePACF:   "PA-CF",
	MaterialTypePAGF:   "PA-GF",
	MaterialTypePLACF:  "PLA-CF",
	MaterialTypePLAGF:  "PLA-GF",
	MaterialTypePETGCF: "PETG-CF",
	MaterialTypePETGGF: "PETG-GF",
	MaterialTypeOther:  "Other",
}

func (mt MaterialType) String() string {
	if name, ok := materialTypeNames[mt]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(mt))
}

// formatUUID converts 16 raw bytes to canonical UUID string form.
func formatUUID(b []byte) string {
	if len(b) != 16 {
		return ""
	}
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// colorToHex converts RGB/RGBA bytes to a hex color string.
func colorToHex(c []byte) string {
	switch len(c) {
	case 3:
		return fmt.Sprintf("#%02X%02X%02X", c[0], c[1], c[2])
	case 4:
		return fmt.Sprintf("#%02X%02X%02X%02X", c[0], c[1], c[2], c[3])
	default:
		return ""
	}
}

// parseHexColor parses #RRGGBB or #RRGGBBAA into bytes.
func parseHexColor(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 && len(s) != 8 {
		return nil, fmt.Errorf("invalid color format: %s", s)
	}
	return hex.DecodeString(s)
}

// parseUUID parses a UUID string into 16 raw bytes.
func parseUUID(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	clean := strings.ReplaceAll(s, "-", "")
	if len(clean) != 32 {
		return nil, fmt.Errorf("invalid UUID format: %s", s)
	}
	return hex.DecodeString(clean)
}
