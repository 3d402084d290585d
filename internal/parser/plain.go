package parser

import "rask-log-pipeline/internal/model"

// PlainParser unconditionally matches. It is the registry's floor: if every
// other parser declines a line, this one still produces a record.
type PlainParser struct{}

func NewPlainParser() *PlainParser { return &PlainParser{} }

func (p *PlainParser) ServiceType() string    { return "plain" }
func (p *PlainParser) DetectionPriority() int { return 0 }

func (p *PlainParser) CanParse(line string) bool { return true }

func (p *PlainParser) ParseLog(line, stream string) (model.ParsedRecord, error) {
	return model.ParsedRecord{
		ServiceType: p.ServiceType(),
		LogType:     model.LogTypePlain,
		Message:     line,
		Level:       levelPtr(model.LevelInfo),
		Stream:      stream,
	}, nil
}
