package synth

import "time"

// Texture identifies an ambient sound synthesis recipe.
type Texture int

const (
	WhiteNoise Texture = iota
	Rain
	Wave
	Forest
	Night
	Temple
)

var textureNames = map[Texture]string{
	WhiteNoise: "whitenoise",
	Rain:       "rain",
	Wave:       "wave",
	Forest:     "forest",
	Night:      "night",
	Temple:     "temple",
}

var texturesByName = map[string]Texture{
	"whitenoise": WhiteNoise,
	"rain":       Rain,
	"wave":       Wave,
	"forest":     Forest,
	"night":      Night,
	"temple":     Temple,
}

// Loop durations per texture. Longer buffers for textures whose envelopes
// span the whole loop (wave, temple), shorter for stationary ones.
var textureDurations = map[Texture]time.Duration{
	WhiteNoise: 2 * time.Second,
	Rain:       3 * time.Second,
	Wave:       6 * time.Second,
	Forest:     4 * time.Second,
	Night:      5 * time.Second,
	Temple:     6 * time.Second,
}

// String returns the wire name of the texture.
func (t Texture) String() string {
	if s, ok := textureNames[t]; ok {
		return s
	}
	return "whitenoise"
}

// Duration returns the default loop length for the texture's buffer.
func (t Texture) Duration() time.Duration {
	if d, ok := textureDurations[t]; ok {
		return d
	}
	return 2 * time.Second
}

// ParseTexture maps a texture name to its Texture. Unknown names fall back
// to WhiteNoise.
func ParseTexture(name string) Texture {
	if t, ok := texturesByName[name]; ok {
		return t
	}
	return WhiteNoise
}

// Textures lists all textures in a stable order.
func Textures() []Texture {
	return []Texture{WhiteNoise, Rain, Wave, Forest, Night, Temple}
}
