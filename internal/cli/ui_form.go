package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"

	"ffqueue/internal/model"
)

type uiFieldKind int

const (
	uiFieldString uiFieldKind = iota
	uiFieldSelect
)

type uiFormField struct {
	Key      string
	Label    string
	Help     string
	Kind     uiFieldKind
	Value    string
	Options  []string
	Required bool
}

type uiForm struct {
	Fields []uiFormField
	Index  int
	Input  textinput.Model
	Error  string
}

var jobTypes = []string{model.TypeOptimize, model.TypeTrim, model.TypeConvert, model.TypeMerge, model.TypeAudio}

func newUIForm(width int) *uiForm {
	f := &uiForm{
		Fields: []uiFormField{
			{Key: "name", Label: "Name", Help: "Shown in the queue; defaults to the last argument", Kind: uiFieldString},
			{Key: "type", Label: "Type", Help: "Operation category", Kind: uiFieldSelect, Value: model.TypeConvert, Options: jobTypes},
			{Key: "command", Label: "Command", Help: "Executable or alias (ffmpeg, ffprobe)", Kind: uiFieldString, Value: "ffmpeg", Required: true},
			{Key: "args", Label: "Arguments", Help: `Space separated; quote values with spaces, e.g. -i "my clip.mp4" -y out.mp4`, Kind: uiFieldString, Required: true},
			{Key: "output", Label: "Output", Help: "Optional output path, informational only", Kind: uiFieldString},
		},
	}
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 4096
	input.Width = clampInt(width-8, 20, 120)
	f.Input = input
	f.loadFieldIntoInput()
	f.Input.Focus()
	return f
}

func (f *uiForm) resize(width int) {
	if f == nil {
		return
	}
	f.Input.Width = clampInt(width-8, 20, 120)
}

func (f *uiForm) currentField() uiFormField {
	if len(f.Fields) == 0 {
		return uiFormField{}
	}
	if f.Index < 0 {
		f.Index = 0
	}
	if f.Index >= len(f.Fields) {
		f.Index = len(f.Fields) - 1
	}
	return f.Fields[f.Index]
}

func (f *uiForm) commitInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	if f.Fields[f.Index].Kind == uiFieldSelect {
		return
	}
	f.Fields[f.Index].Value = strings.TrimSpace(f.Input.Value())
}

func (f *uiForm) loadFieldIntoInput() {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	f.Input.SetValue(f.Fields[f.Index].Value)
	f.Input.CursorEnd()
}

func (f *uiForm) stepSelect(delta int) {
	if f == nil || len(f.Fields) == 0 {
		return
	}
	curr := f.Fields[f.Index]
	if curr.Kind != uiFieldSelect || len(curr.Options) == 0 {
		return
	}
	pos := 0
	for i, opt := range curr.Options {
		if strings.EqualFold(opt, strings.TrimSpace(curr.Value)) {
			pos = i
			break
		}
	}
	n := len(curr.Options)
	pos = ((pos+delta)%n + n) % n
	curr.Value = curr.Options[pos]
	f.Fields[f.Index] = curr
	f.loadFieldIntoInput()
}

func (f *uiForm) value(key string) string {
	for _, field := range f.Fields {
		if field.Key == key {
			return strings.TrimSpace(field.Value)
		}
	}
	return ""
}

func (f *uiForm) toRequest() (model.Request, error) {
	for _, field := range f.Fields {
		if field.Required && strings.TrimSpace(field.Value) == "" {
			return model.Request{}, fmt.Errorf("%s is required", strings.ToLower(field.Label))
		}
	}
	args, err := splitArgs(f.value("args"))
	if err != nil {
		return model.Request{}, fmt.Errorf("arguments: %w", err)
	}
	name := f.value("name")
	if name == "" && len(args) > 0 {
		name = args[len(args)-1]
	}
	return model.Request{
		Name:    name,
		Type:    f.value("type"),
		Command: f.value("command"),
		Args:    args,
		Output:  f.value("output"),
	}, nil
}
