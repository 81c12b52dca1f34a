package openprinttag

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder: %v", err))
	}

	// ExtraDecErrorNone: NFC tags pad payloads with trailing zeros
	decMode, err = cbor.DecOptions{
		IntDec:            cbor.IntDecConvertSigned,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder: %v", err))
	}
}

// Decode parses a CBOR payload into a Tag. Payloads are concatenated CBOR
// sections, Meta + Main + Aux, where the meta section carries byte offsets to
// the others. Payloads written without a meta section (bare main map) are
// accepted too.
func Decode(payload []byte) (*Tag, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	tag := &Tag{}

	// Meta and main sections are both int-keyed maps. Key 2 disambiguates:
	// in meta it is the integer aux offset, in main it is the MaterialUUID
	// byte string.
	var first map[int]interface{}
	if err := decMode.NewDecoder(bytes.NewReader(payload)).Decode(&first); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	auxOffset, isMeta := asInt(first[2])
	if !isMeta {
		if err := decMode.NewDecoder(bytes.NewReader(payload)).Decode(&tag.Main); err != nil {
			return nil, fmt.Errorf("failed to decode main section: %w", err)
		}
		return tag, nil
	}

	tag.Meta.AuxOffset = uint16(auxOffset)
	if v, ok := asInt(first[0]); ok {
		tag.Meta.MainOffset = uint16(v)
	}
	if v, ok := asInt(first[1]); ok {
		tag.Meta.MainSize = uint16(v)
	}
	if v, ok := asInt(first[3]); ok {
		tag.Meta.AuxSize = uint16(v)
	}

	// Main starts right after the meta map unless an explicit offset is set.
	// Re-encode the meta map to find where it ends.
	mainStart := int(tag.Meta.MainOffset)
	if mainStart == 0 {
		metaBytes, _ := encMode.Marshal(first)
		mainStart = len(metaBytes)
	}

	mainEnd := auxOffset
	if mainEnd > len(payload) {
		mainEnd = len(payload)
	}
	if mainStart < mainEnd {
		dec := decMode.NewDecoder(bytes.NewReader(payload[mainStart:mainEnd]))
		if err := dec.Decode(&tag.Main); err != nil {
			return nil, fmt.Errorf("failed to decode main section: %w", err)
		}
	}

	if auxOffset < len(payload) {
		// Aux may be empty or padding; a decode failure leaves it zeroed
		_ = decMode.NewDecoder(bytes.NewReader(payload[auxOffset:])).Decode(&tag.Aux)
	}

	return tag, nil
}

// asInt normalizes the integer types the decoder may hand back for map
// values. Byte strings and everything else report false.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	default:
		return 0, false
	}
}

// Encode serializes the tag to CBOR bytes for an NDEF payload: a minimal meta
// map {2: aux_offset}, then the main section, then the aux section.
func (t *Tag) Encode() ([]byte, error) {
	mainBytes, err := encMode.Marshal(&t.Main)
	if err != nil {
		return nil, fmt.Errorf("failed to encode main section: %w", err)
	}
	if len(mainBytes) > MaxSectionSize {
		return nil, fmt.Errorf("main section exceeds %d bytes (got %d)", MaxSectionSize, len(mainBytes))
	}

	auxBytes, err := encMode.Marshal(&t.Aux)
	if err != nil {
		return nil, fmt.Errorf("failed to encode auxiliary section: %w", err)
	}
	if len(auxBytes) > MaxSectionSize {
		return nil, fmt.Errorf("auxiliary section exceeds %d bytes (got %d)", MaxSectionSize, len(auxBytes))
	}

	// The aux offset counts the meta map itself, whose encoded size depends
	// on the offset value. Iterate until the size is stable; CBOR small ints
	// converge within a couple of rounds.
	var metaBytes []byte
	estimate := 4
	for i := 0; i < 5; i++ {
		metaBytes, err = encMode.Marshal(map[int]int{2: estimate + len(mainBytes)})
		if err != nil {
			return nil, fmt.Errorf("failed to encode meta section: %w", err)
		}
		if len(metaBytes) == estimate {
			break
		}
		estimate = len(metaBytes)
	}

	out := make([]byte, 0, len(metaBytes)+len(mainBytes)+len(auxBytes))
	out = append(out, metaBytes...)
	out = append(out, mainBytes...)
	out = append(out, auxBytes...)
	return out, nil
}

// Tag converts the write input into a full Tag, deriving any UUIDs the caller
// left blank.
func (i *Input) Tag() (*Tag, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}

	tag := &Tag{}
	tag.Main.MaterialName = i.MaterialName
	tag.Main.BrandName = i.BrandName
	tag.Main.MaterialClass = MaterialClass(i.MaterialClass)
	tag.Main.MaterialType = MaterialType(i.MaterialType)
	tag.Main.NominalNettoFullWeight = i.NominalWeight
	tag.Main.FilamentDiameter = i.FilamentDiameter
	tag.Main.Density = i.Density
	tag.Main.MinPrintTemp = i.MinPrintTemp
	tag.Main.MaxPrintTemp = i.MaxPrintTemp
	tag.Main.ManufacturedDate = i.ManufacturedDate
	tag.Main.ExpirationDate = i.ExpirationDate

	if i.InstanceUUID != "" {
		b, err := parseUUID(i.InstanceUUID)
		if err != nil {
			return nil, fmt.Errorf("invalid instanceUuid: %w", err)
		}
		tag.Main.InstanceUUID = b
	} else {
		u := uuid.New()
		tag.Main.InstanceUUID = u[:]
	}

	if i.BrandUUID != "" {
		b, err := parseUUID(i.BrandUUID)
		if err != nil {
			return nil, fmt.Errorf("invalid brandUuid: %w", err)
		}
		tag.Main.BrandUUID = b
	} else {
		tag.Main.BrandUUID = GenerateBrandUUID(i.BrandName)
	}

	if i.MaterialUUID != "" {
		b, err := parseUUID(i.MaterialUUID)
		if err != nil {
			return nil, fmt.Errorf("invalid materialUuid: %w", err)
		}
		tag.Main.MaterialUUID = b
	} else {
		tag.Main.MaterialUUID = GenerateMaterialUUID(i.BrandName, i.MaterialName)
	}

	if i.PrimaryColor != "" {
		c, err := parseHexColor(i.PrimaryColor)
		if err != nil {
			return nil, fmt.Errorf("invalid primaryColor: %w", err)
		}
		tag.Main.PrimaryColor = c
	}

	tag.Aux.ConsumedWeight = i.ConsumedWeight
	tag.Aux.Workgroup = i.Workgroup

	return tag, nil
}

// Encode converts the input straight to CBOR bytes.
func (i *Input) Encode() ([]byte, error) {
	tag, err := i.Tag()
	if err != nil {
		return nil, err
	}
	return tag.Encode()
}

// Namespace UUIDs for UUIDv5 derivation, per OpenPrintTag spec section 3.2.1.
var (
	brandNamespace    = uuid.MustParse("5269dfb7-1559-440a-85be-aba5f3eff2d2")
	materialNamespace = uuid.MustParse("616fc86d-7d99-4953-96c7-46d2836b9be9")
	packageNamespace  = uuid.MustParse("6f7d485e-db8d-4979-904e-a231cd6602b2")
	instanceNamespace = uuid.MustParse("31062f81-b5bd-4f86-a5f8-46367e841508")
)

// GenerateBrandUUID derives uuid5(brandNamespace, brand_name).
func GenerateBrandUUID(brandName string) []byte {
	u := uuid.NewSHA1(brandNamespace, []byte(brandName))
	return u[:]
}

// GenerateMaterialUUID derives uuid5(materialNamespace, brand_uuid + material_name).
func GenerateMaterialUUID(brandName, materialName string) []byte {
	data := append(GenerateBrandUUID(brandName), []byte(materialName)...)
	u := uuid.NewSHA1(materialNamespace, data)
	return u[:]
}

// GeneratePackageUUID derives uuid5(packageNamespace, brand_uuid + gtin).
func GeneratePackageUUID(brandUUID []byte, gtin string) []byte {
	data := append(append([]byte(nil), brandUUID...), []byte(gtin)...)
	u := uuid.NewSHA1(packageNamespace, data)
	return u[:]
}

// GenerateInstanceUUID derives uuid5(instanceNamespace, nfc_tag_uid). The UID
// is MSB first, e.g. 0xE0 leading for NFC-V tags.
func GenerateInstanceUUID(nfcTagUID []byte) []byte {
	u := uuid.NewSHA1(instanceNamespace, nfcTagUID)
	return u[:]
}
