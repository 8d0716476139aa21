package knowledge

import _ "embed"

//go:embed rubber_knowledge.json
var embeddedCorpus []byte

// Embedded returns the rubber cultivation corpus compiled into the binary.
func Embedded() Source {
	return BytesSource{Label: "embedded:rubber_knowledge.json", Data: embeddedCorpus, Encoding: FormatJSON}
}
