package core

import (
	"sort"
	"strconv"
	"sync"

	"spibus/protocol"
	"spibus/tinycompress"
)

// Dictionary describes the firmware to the host: version, constants,
// enumerations and the ID of every command and response. The host fetches
// it in chunks with the identify command.
type Dictionary struct {
	mu            sync.RWMutex
	registry      *CommandRegistry
	version       string
	buildVersions string
	constants     map[string]string
	enumerations  map[string][]string
	compressed    []byte
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary returns a dictionary over reg.
func NewDictionary(reg *CommandRegistry) *Dictionary {
	return &Dictionary{
		registry:      reg,
		version:       "spibus-" + protocol.Version,
		buildVersions: "go-tinygo",
		constants:     make(map[string]string),
		enumerations:  make(map[string][]string),
	}
}

// GetGlobalDictionary returns the dictionary of the global registry.
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}

// RegisterConstant adds a constant to the global dictionary.
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration adds an enumeration to the global dictionary.
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant records a constant. Values are sent as strings.
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = valueToString(value)
	d.compressed = nil
}

// AddEnumeration records an enumeration; values are numbered by position
// and empty values are left out.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enumerations[name] = append([]string(nil), values...)
	d.compressed = nil
}

// SetVersion sets the firmware version string.
func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.compressed = nil
}

// SetBuildVersions sets the toolchain description.
func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.compressed = nil
}

// Build renders and compresses the dictionary. Call it after every command
// is registered; later changes invalidate the cached copy.
func (d *Dictionary) Build() []byte {
	// Read the registry before taking our own lock.
	commands, responses := d.registry.CommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.compressed == nil {
		d.compressed = tinycompress.Compress(d.jsonLocked(commands, responses))
		DebugPrintln("dictionary built: " + strconv.Itoa(len(d.compressed)) + " bytes")
	}
	return d.compressed
}

// JSON returns the uncompressed dictionary.
func (d *Dictionary) JSON() []byte {
	commands, responses := d.registry.CommandsAndResponses()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.jsonLocked(commands, responses)
}

// GetChunk returns up to count bytes of the compressed dictionary starting
// at offset. Past the end it returns an empty chunk.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Build()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := min(offset+uint32(count), uint32(len(data)))
	return append([]byte(nil), data[offset:end]...)
}

func (d *Dictionary) jsonLocked(commands, responses map[string]int) []byte {
	out := make([]byte, 0, 1024)
	out = append(out, `{"version":`...)
	out = strconv.AppendQuote(out, d.version)
	out = append(out, `,"build_versions":`...)
	out = strconv.AppendQuote(out, d.buildVersions)

	out = append(out, `,"config":{`...)
	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendQuote(out, name)
		out = append(out, ':')
		out = strconv.AppendQuote(out, d.constants[name])
	}

	out = append(out, `},"commands":`...)
	out = appendIDs(out, commands)
	out = append(out, `,"responses":`...)
	out = appendIDs(out, responses)

	if len(d.enumerations) > 0 {
		out = append(out, `,"enumerations":{`...)
		for i, name := range sortedKeys(d.enumerations) {
			if i > 0 {
				out = append(out, ',')
			}
			out = strconv.AppendQuote(out, name)
			out = append(out, ":{"...)
			first := true
			for idx, value := range d.enumerations[name] {
				if value == "" {
					continue
				}
				if !first {
					out = append(out, ',')
				}
				first = false
				out = strconv.AppendQuote(out, value)
				out = append(out, ':')
				out = strconv.AppendInt(out, int64(idx), 10)
			}
			out = append(out, '}')
		}
		out = append(out, '}')
	}
	return append(out, '}')
}

// appendIDs writes a signature to ID object ordered by ID.
func appendIDs(out []byte, ids map[string]int) []byte {
	sigs := sortedKeys(ids)
	sort.SliceStable(sigs, func(i, j int) bool { return ids[sigs[i]] < ids[sigs[j]] })

	out = append(out, '{')
	for i, sig := range sigs {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendQuote(out, sig)
		out = append(out, ':')
		out = strconv.AppendInt(out, int64(ids[sig]), 10)
	}
	return append(out, '}')
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint:
		return strconv.FormatUint(uint64(val), 10)
	case uint32:
		return strconv.FormatUint(uint64(val), 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
