package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	mediadomain "github.com/ErginDapaj/Condown/internal/domain/media"
)

const (
	actionConvert  = "convert"
	actionDownload = "download"
	actionExit     = "exit"
)

type menuChoice struct {
	Label string
	Value string
}

var menuActions = []menuChoice{
	{Label: "Convert a video file", Value: actionConvert},
	{Label: "Download from YouTube", Value: actionDownload},
	{Label: "Exit", Value: actionExit},
}

type fieldKind int

const (
	fieldText fieldKind = iota
	fieldSelect
)

type formField struct {
	Key      string
	Label    string
	Kind     fieldKind
	Value    string
	Options  []string
	Validate func(string) error
}

type menuResult struct {
	Action string
	Values map[string]string
}

// menuModel asks for an action, then walks the fields of its form.
type menuModel struct {
	choosing  bool
	cursor    int
	action    string
	title     string
	fields    []formField
	index     int
	input     textinput.Model
	err       string
	done      bool
	cancelled bool

	downloadsDir string
}

// newMenuModel starts at the action list, or directly in the form of action
// when one is given.
func newMenuModel(action, downloadsDir string) menuModel {
	m := menuModel{choosing: true, downloadsDir: downloadsDir}
	if action != "" {
		m = m.startForm(action)
	}
	return m
}

func (m menuModel) startForm(action string) menuModel {
	m.choosing = false
	m.action = action
	m.index = 0
	m.err = ""
	switch action {
	case actionConvert:
		m.title = "--- Video Conversion ---"
		m.fields = convertFields()
	default:
		m.title = "--- YouTube Downloader ---"
		m.fields = downloadFields(m.downloadsDir)
	}

	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 1024
	input.Width = 60
	input.Focus()
	m.input = input
	m.loadField()
	return m
}

func convertFields() []formField {
	return []formField{
		{Key: "input", Label: "Enter the path to your video file:", Kind: fieldText, Validate: validateVideoFile},
		{Key: "format", Label: "What format would you like to convert to?", Kind: fieldSelect, Options: formatValues(mediadomain.ConversionFormats()), Value: string(mediadomain.FormatMP4)},
		{Key: "quality", Label: "Select output quality:", Kind: fieldSelect, Options: optionValues(mediadomain.ConversionQualities()), Value: string(mediadomain.QualityOriginal)},
		{Key: "output", Label: "Where should the converted file be saved? (empty: next to the input)", Kind: fieldText},
	}
}

func downloadFields(downloadsDir string) []formField {
	return []formField{
		{Key: "url", Label: "Enter YouTube video URL:", Kind: fieldText, Validate: func(v string) error {
			if _, err := mediadomain.ValidateRetrievalURL(v); err != nil {
				return errors.New("Please enter a valid YouTube URL")
			}
			return nil
		}},
		{Key: "quality", Label: "Select video quality:", Kind: fieldSelect, Options: optionValues(mediadomain.RetrievalQualities()), Value: string(mediadomain.Quality1080p)},
		{Key: "format", Label: "Select format:", Kind: fieldSelect, Options: formatValues(mediadomain.RetrievalFormats()), Value: string(mediadomain.FormatMP4)},
		{Key: "output", Label: "Where should the video be saved?", Kind: fieldText, Value: downloadsDir, Validate: func(v string) error {
			if v == "" {
				return errors.New("Please enter an output directory")
			}
			return nil
		}},
	}
}

func validateVideoFile(v string) error {
	if v == "" {
		return errors.New("Please enter a file path")
	}
	info, err := os.Stat(v)
	if err != nil || info.IsDir() || !mediadomain.IsSupportedVideoExt(filepath.Ext(v)) {
		return errors.New("File does not exist or is not a valid video file")
	}
	return nil
}

func (m menuModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m menuModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.choosing {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	if key.Type == tea.KeyCtrlC {
		m.cancelled = true
		return m, tea.Quit
	}
	if m.choosing {
		return m.updateChoice(key)
	}
	return m.updateForm(key)
}

func (m menuModel) updateChoice(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(menuActions)-1 {
			m.cursor++
		}
	case "esc", "q":
		m.cancelled = true
		return m, tea.Quit
	case "enter":
		choice := menuActions[m.cursor].Value
		if choice == actionExit {
			m.action = actionExit
			m.done = true
			return m, tea.Quit
		}
		return m.startForm(choice), textinput.Blink
	}
	return m, nil
}

func (m menuModel) updateForm(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	kind := m.fields[m.index].Kind
	switch key.String() {
	case "esc":
		m.cancelled = true
		return m, tea.Quit
	case "up", "shift+tab":
		m.commitField()
		if m.index > 0 {
			m.index--
			m.loadField()
		}
		return m, nil
	case "down", "tab":
		m.commitField()
		if m.index < len(m.fields)-1 {
			m.index++
			m.loadField()
		}
		return m, nil
	case "left", "h":
		if kind == fieldSelect {
			m.cycle(-1)
			return m, nil
		}
	case "right", "l", " ":
		if kind == fieldSelect {
			m.cycle(1)
			return m, nil
		}
	case "enter":
		m.commitField()
		field := m.fields[m.index]
		if field.Validate != nil {
			if err := field.Validate(field.Value); err != nil {
				m.err = err.Error()
				return m, nil
			}
		}
		m.err = ""
		if m.index < len(m.fields)-1 {
			m.index++
			m.loadField()
			return m, nil
		}
		m.done = true
		return m, tea.Quit
	}

	if kind == fieldSelect {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	m.fields[m.index].Value = m.input.Value()
	return m, cmd
}

func (m *menuModel) cycle(step int) {
	field := &m.fields[m.index]
	if len(field.Options) == 0 {
		return
	}
	pos := 0
	for i, opt := range field.Options {
		if opt == field.Value {
			pos = i
			break
		}
	}
	pos = (pos + step + len(field.Options)) % len(field.Options)
	field.Value = field.Options[pos]
}

func (m *menuModel) commitField() {
	if m.fields[m.index].Kind == fieldText {
		m.fields[m.index].Value = strings.TrimSpace(m.input.Value())
	}
}

func (m *menuModel) loadField() {
	if m.fields[m.index].Kind == fieldText {
		m.input.SetValue(m.fields[m.index].Value)
		m.input.CursorEnd()
	}
}

func (m menuModel) result() menuResult {
	values := make(map[string]string, len(m.fields))
	for _, f := range m.fields {
		values[f.Key] = f.Value
	}
	return menuResult{Action: m.action, Values: values}
}

func (m menuModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("  Video Converter & YouTube Downloader") + "\n\n")

	if m.choosing {
		b.WriteString("What would you like to do?\n")
		for i, choice := range menuActions {
			if i == m.cursor {
				b.WriteString("> " + selStyle.Render(choice.Label) + "\n")
				continue
			}
			b.WriteString("  " + choice.Label + "\n")
		}
		b.WriteString("\n" + mutedStyle.Render("up/down move, enter select, esc quit"))
		return b.String()
	}

	b.WriteString(headerStyle.Render(m.title) + "\n\n")
	for _, f := range m.fields[:m.index] {
		b.WriteString(mutedStyle.Render(f.Label+" "+f.Value) + "\n")
	}
	current := m.fields[m.index]
	b.WriteString(current.Label + "\n")
	if current.Kind == fieldSelect {
		b.WriteString("  < " + selStyle.Render(current.Value) + " >\n")
	} else {
		b.WriteString(m.input.View() + "\n")
	}
	if m.err != "" {
		b.WriteString(errorStyle.Render(m.err) + "\n")
	}
	b.WriteString("\n" + mutedStyle.Render("enter confirm, tab/shift+tab move, left/right change choice, esc cancel"))
	return b.String()
}

func runMenu(ctx context.Context, streams Streams, action, downloadsDir string) (menuResult, error) {
	p := tea.NewProgram(
		newMenuModel(action, downloadsDir),
		tea.WithContext(ctx),
		tea.WithInput(streams.In),
		tea.WithOutput(streams.Out),
	)
	final, err := p.Run()
	if err != nil {
		return menuResult{}, err
	}
	m, ok := final.(menuModel)
	if !ok || m.cancelled {
		return menuResult{Action: actionExit}, nil
	}
	return m.result(), nil
}

// runMenuLoop offers the action menu until the user exits. Job failures are
// reported and the menu is shown again.
func (c *commandContext) runMenuLoop(ctx context.Context) error {
	for {
		done, err := c.menuRound(ctx, "")
		if err != nil || done {
			return err
		}
		fmt.Fprintln(c.streams.Out)
	}
}

// runMenuOnce collects the options of one job of kind action and runs it.
func (c *commandContext) runMenuOnce(ctx context.Context, action string) error {
	_, err := c.menuRound(ctx, action)
	return err
}

func (c *commandContext) menuRound(ctx context.Context, action string) (bool, error) {
	_, cfg, err := c.ensure()
	if err != nil {
		return true, err
	}
	res, err := runMenu(ctx, c.streams, action, defaultDownloadsDir(cfg))
	if err != nil {
		return true, err
	}

	switch res.Action {
	case actionConvert:
		err = c.convert(ctx, convertOptions{
			input:   res.Values["input"],
			output:  res.Values["output"],
			format:  res.Values["format"],
			quality: res.Values["quality"],
		})
	case actionDownload:
		err = c.download(ctx, downloadOptions{
			url:     res.Values["url"],
			output:  res.Values["output"],
			format:  res.Values["format"],
			quality: res.Values["quality"],
		})
	default:
		fmt.Fprintln(c.streams.Out, okStyle.Render("Goodbye!"))
		return true, nil
	}

	if action != "" {
		return true, err
	}
	var reported *reportedError
	if err != nil && !errors.As(err, &reported) {
		return true, err
	}
	return false, nil
}

func formatValues(formats []mediadomain.Format) []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}

func optionValues(options []mediadomain.Option) []string {
	out := make([]string, len(options))
	for i, o := range options {
		out[i] = o.Value
	}
	return out
}
