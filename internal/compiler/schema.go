package compiler

import "encoding/json"

// The raw JSON shape, exactly as spec.md §4.F documents it:
//
//	{ "version": "2.0",
//	  "keyboard": { "keys": { "<name>": "<hex-scancode>", ... } },
//	  "virtualModifiers": {
//	    "M<hh>": { "trigger": "<keyName>",
//	               "tap": "<keyName>"?,
//	               "holdThresholdMs": <int>? },
//	    ... },
//	  "mappings": [
//	    { "keymap": "<name>"?,
//	      "parent": "<name>"?,
//	      "windowClass": "<regex>"?,
//	      "windowTitle": "<regex>"?,
//	      "from": "<modified-key-expr>",
//	      "to":   "<keyName> | [<keyName>, ...]" },
//	    ... ] }
const schemaVersion = "2.0"

var topLevelKeys = map[string]bool{
	"version":          true,
	"keyboard":         true,
	"virtualModifiers": true,
	"mappings":         true,
}

type rawConfig struct {
	Version          string                     `json:"version"`
	Keyboard         rawKeyboard                `json:"keyboard"`
	VirtualModifiers map[string]rawVirtualMod    `json:"virtualModifiers"`
	Mappings         []rawMapping               `json:"mappings"`
}

type rawKeyboard struct {
	Keys map[string]string `json:"keys"`
}

type rawVirtualMod struct {
	Trigger         string `json:"trigger"`
	Tap             string `json:"tap"`
	HoldThresholdMs *int   `json:"holdThresholdMs"`
}

type rawMapping struct {
	Keymap      string          `json:"keymap"`
	Parent      string          `json:"parent"`
	WindowClass string          `json:"windowClass"`
	WindowTitle string          `json:"windowTitle"`
	From        string          `json:"from"`
	To          json.RawMessage `json:"to"`
}

// resolveTo unmarshals the "to" field, which per spec.md §4.F is either a
// single key name or an array of key names.
func (m rawMapping) resolveTo() ([]string, error) {
	var single string
	if err := json.Unmarshal(m.To, &single); err == nil {
		return []string{single}, nil
	}
	var list []string
	if err := json.Unmarshal(m.To, &list); err != nil {
		return nil, err
	}
	return list, nil
}
