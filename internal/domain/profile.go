package domain

import "sort"

// EncodeProfile describes how the final video stream is encoded.
// Values are built by the profile selector and must not be mutated;
// use Params to read the encoder options.
type EncodeProfile struct {
	Name        string   `json:"name"`
	VideoCodec  string   `json:"videoCodec"`
	ThreadCount int      `json:"threadCount"`
	VideoFilter string   `json:"videoFilter,omitempty"`

	params map[string]string
	hwArgs []string
}

// NewEncodeProfile copies params so later changes by the caller do not leak in.
func NewEncodeProfile(name, codec string, threads int, params map[string]string) EncodeProfile {
	p := EncodeProfile{
		Name:        name,
		VideoCodec:  codec,
		ThreadCount: threads,
		params:      make(map[string]string, len(params)),
	}
	for k, v := range params {
		p.params[k] = v
	}
	return p
}

// Params returns a copy of the encoder-specific quality options.
func (p EncodeProfile) Params() map[string]string {
	out := make(map[string]string, len(p.params))
	for k, v := range p.params {
		out[k] = v
	}
	return out
}

// WithHWArgs returns a copy of p whose global arguments initialise a hardware
// device before the inputs are opened.
func (p EncodeProfile) WithHWArgs(args ...string) EncodeProfile {
	p.hwArgs = append([]string(nil), args...)
	return p
}

// HWArgs returns a copy of the hardware device arguments.
func (p EncodeProfile) HWArgs() []string {
	return append([]string(nil), p.hwArgs...)
}

// Param returns one quality option.
func (p EncodeProfile) Param(key string) (string, bool) {
	v, ok := p.params[key]
	return v, ok
}

// IsZero reports whether the profile carries no codec.
func (p EncodeProfile) IsZero() bool {
	return p.VideoCodec == ""
}

// ParamKeys returns option names in a stable order.
func (p EncodeProfile) ParamKeys() []string {
	keys := make([]string, 0, len(p.params))
	for k := range p.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EncodeProfileView is the JSON shape handed to the frontend.
type EncodeProfileView struct {
	Hint        string            `json:"hint"`
	Name        string            `json:"name"`
	VideoCodec  string            `json:"videoCodec"`
	ThreadCount int               `json:"threadCount"`
	Params      map[string]string `json:"params"`
	HWArgs      []string          `json:"hwArgs,omitempty"`
	VideoFilter string            `json:"videoFilter,omitempty"`
	Selected    bool              `json:"selected"`
}
