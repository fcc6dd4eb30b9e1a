package drmfb

import (
	"fmt"

	"github.com/BeatGlow/drmfb/kms"
)

// findConnector enumerates the device's connectors and returns the first one
// whose display name matches name exactly. Connectors that fail to fetch are
// skipped, and non-matching connectors are not retained.
func findConnector(dev Device, res *kms.Resources, name string) (*kms.Connector, error) {
	want := clipName(name)
	for _, id := range res.Connectors {
		c, err := dev.Connector(id)
		if err != nil {
			logger.Debug("skipping connector", "id", id, "err", err)
			continue
		}
		if ConnectorName(c) == want {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrOutputNotFound, name)
}

// selectMode picks the session's display mode from the connector's mode
// list, which must be non-empty. A valid index wins; otherwise the last mode
// flagged preferred is used, and with no preferred mode the first listed
// mode, with a diagnostic.
func selectMode(c *kms.Connector, index int) *kms.ModeInfo {
	if index >= 0 && index < len(c.Modes) {
		return &c.Modes[index]
	}

	var mode *kms.ModeInfo
	for i := range c.Modes {
		if c.Modes[i].Preferred() {
			mode = &c.Modes[i] // last preferred entry wins
		}
	}
	if mode == nil {
		logger.Warn("no preferred mode flagged, using first mode",
			"output", ConnectorName(c), "mode", c.Modes[0].String())
		mode = &c.Modes[0]
	}
	return mode
}
