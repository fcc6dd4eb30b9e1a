package drmfb

import (
	"fmt"

	"github.com/BeatGlow/drmfb/kms"
)

// Labels indexed by connector type code, matching the names the kernel
// itself uses for connectors.
var connectorTypeNames = [...]string{
	kms.ConnectorUnknown:     "unknown",
	kms.ConnectorVGA:         "VGA",
	kms.ConnectorDVII:        "DVI-I",
	kms.ConnectorDVID:        "DVI-D",
	kms.ConnectorDVIA:        "DVI-A",
	kms.ConnectorComposite:   "composite",
	kms.ConnectorSVideo:      "s-video",
	kms.ConnectorLVDS:        "LVDS",
	kms.ConnectorComponent:   "component",
	kms.Connector9PinDIN:     "9-pin DIN",
	kms.ConnectorDisplayPort: "DP",
	kms.ConnectorHDMIA:       "HDMI-A",
	kms.ConnectorHDMIB:       "HDMI-B",
	kms.ConnectorTV:          "TV",
	kms.ConnectorEDP:         "eDP",
	kms.ConnectorVirtual:     "Virtual",
	kms.ConnectorDSI:         "DSI",
	kms.ConnectorDPI:         "DPI",
}

// ConnectorTypeName returns the label for a connector type code. Codes
// outside the table resolve to "INVALID" rather than failing.
func ConnectorTypeName(code uint32) string {
	if int(code) < len(connectorTypeNames) {
		return connectorTypeNames[code]
	}
	return "INVALID"
}

// Kernel connector name limit, including the terminator.
const connectorNameLen = 32

// ConnectorName builds a connector's display name, the type label joined
// with the per-type instance index, e.g. "HDMI-A-1".
func ConnectorName(c *kms.Connector) string {
	return clipName(fmt.Sprintf("%s-%d", ConnectorTypeName(c.Type), c.TypeID))
}

func clipName(s string) string {
	if len(s) >= connectorNameLen {
		return s[:connectorNameLen-1]
	}
	return s
}
