package presence

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// DefaultPolkitAction is the action biovault checks when none is configured.
const DefaultPolkitAction = "com.n1.biovault.unlock"

// Policy renders a polkit action definition for actionID. Installing it in
// /usr/share/polkit-1/actions makes the action known so that Available
// reports true and Verify prompts through the session's agent.
func Policy(actionID, vendor, description, message string) ([]byte, error) {
	if actionID == "" {
		return nil, fmt.Errorf("polkit action id is required")
	}

	type defaults struct {
		AllowAny      string `xml:"allow_any"`
		AllowInactive string `xml:"allow_inactive"`
		AllowActive   string `xml:"allow_active"`
	}
	type action struct {
		ID          string   `xml:"id,attr"`
		Description string   `xml:"description"`
		Message     string   `xml:"message"`
		Defaults    defaults `xml:"defaults"`
	}
	type policyConfig struct {
		XMLName xml.Name `xml:"policyconfig"`
		Vendor  string   `xml:"vendor"`
		Action  action   `xml:"action"`
	}

	doc := policyConfig{
		Vendor: vendor,
		Action: action{
			ID:          actionID,
			Description: description,
			Message:     message,
			Defaults: defaults{
				AllowAny:      "no",
				AllowInactive: "no",
				AllowActive:   "auth_self",
			},
		},
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<!DOCTYPE policyconfig PUBLIC "-//freedesktop//DTD PolicyKit Policy Configuration 1.0//EN" "http://www.freedesktop.org/standards/PolicyKit/1/policyconfig.dtd">` + "\n")
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode polkit policy: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
