package adapter

import (
	"bytes"
	"debug/dwarf"
	"debug/elf"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ianlancetaylor/demangle"
	"golang.org/x/arch/x86/x86asm"

	m "funcov.dev/pkg/funcov/internal/model"
)

// elfMagic is the four-byte header every ELF object starts with.
var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// IsELF reports whether content starts with the ELF header magic.
func IsELF(content []byte) bool {
	return bytes.HasPrefix(content, elfMagic)
}

// SymbolReader extracts the function universe of a target binary from its
// debug metadata.
type SymbolReader interface {
	// ReadSymbols returns the functions defined in the binary at path,
	// never those of dynamically linked libraries. debugRoot is searched
	// for a detached debug file when the binary itself carries none.
	ReadSymbols(path m.Path, debugRoot m.Path) (m.SymbolSet, error)
}

// ELFSymbolReader reads function symbols from ELF binaries. Sources are
// tried in order: embedded DWARF, a detached debug file located by GNU
// build ID, then the static symbol table.
type ELFSymbolReader struct{}

// NewELFSymbolReader creates a new ELFSymbolReader.
func NewELFSymbolReader() *ELFSymbolReader {
	return &ELFSymbolReader{}
}

type rawFunc struct {
	name  string
	start uint64
	end   uint64
}

// ReadSymbols implements SymbolReader.
func (r *ELFSymbolReader) ReadSymbols(path m.Path, debugRoot m.Path) (m.SymbolSet, error) {
	file, err := elf.Open(string(path))
	if err != nil {
		slog.Error("failed to parse binary", "path", path, "error", err)
		return m.SymbolSet{}, fmt.Errorf("failed to parse %s: %w", path, m.ErrNoDebugInfo)
	}

	defer func() {
		if err := file.Close(); err != nil {
			slog.Error("failed to close binary", "path", path, "error", err)
		}
	}()

	functions := r.dwarfFunctions(file)
	if len(functions) == 0 {
		functions = r.detachedFunctions(file, debugRoot)
	}

	if len(functions) == 0 {
		functions = r.symtabFunctions(file)
	}

	if len(functions) == 0 {
		slog.Error("no usable debug metadata", "path", path)
		return m.SymbolSet{}, fmt.Errorf("no function metadata in %s: %w", path, m.ErrNoDebugInfo)
	}

	set := buildSymbolSet(functions)
	slog.Debug("extracted symbols", "path", path, "functions", set.Len(), "duplicates", len(set.Ignored))

	return set, nil
}

// dwarfFunctions collects subprogram entries from embedded debug data.
func (r *ELFSymbolReader) dwarfFunctions(file *elf.File) []rawFunc {
	data, err := file.DWARF()
	if err != nil {
		slog.Debug("no embedded debug entries", "error", err)
		return nil
	}

	return readSubprograms(data)
}

func readSubprograms(data *dwarf.Data) []rawFunc {
	var functions []rawFunc

	reader := data.Reader()

	for {
		entry, err := reader.Next()
		if err != nil {
			slog.Debug("debug entry walk aborted", "error", err)
			return nil
		}

		if entry == nil {
			break
		}

		if entry.Tag != dwarf.TagSubprogram {
			continue
		}

		name, ok := entry.Val(dwarf.AttrName).(string)
		if !ok {
			// Declarations and out-of-line instances carry no name.
			continue
		}

		start, ok := entry.Val(dwarf.AttrLowpc).(uint64)
		if !ok {
			continue
		}

		functions = append(functions, rawFunc{name: name, start: start, end: subprogramEnd(entry, start)})
	}

	return functions
}

// subprogramEnd decodes the high-pc attribute, which is encoded either as an
// absolute address or as an offset from low-pc.
func subprogramEnd(entry *dwarf.Entry, start uint64) uint64 {
	switch end := entry.Val(dwarf.AttrHighpc).(type) {
	case uint64:
		return end
	case int64:
		return start + uint64(end)
	default:
		return start
	}
}

// detachedFunctions looks for a debug file installed under debugRoot using
// the GNU build-ID layout: <root>/.build-id/ab/cdef....debug.
func (r *ELFSymbolReader) detachedFunctions(file *elf.File, debugRoot m.Path) []rawFunc {
	if debugRoot == "" {
		return nil
	}

	id := buildID(file)
	if len(id) < 3 {
		return nil
	}

	path := filepath.Join(string(debugRoot), ".build-id", id[:2], id[2:]+".debug")

	detached, err := elf.Open(path)
	if err != nil {
		slog.Debug("no detached debug file", "path", path, "error", err)
		return nil
	}

	defer func() {
		if err := detached.Close(); err != nil {
			slog.Error("failed to close debug file", "path", path, "error", err)
		}
	}()

	functions := r.dwarfFunctions(detached)
	if len(functions) == 0 {
		functions = r.symtabFunctions(detached)
	}

	if len(functions) > 0 {
		slog.Debug("using detached debug file", "path", path)
	}

	return functions
}

// buildID returns the hex GNU build ID from the note section, or "".
func buildID(file *elf.File) string {
	section := file.Section(".note.gnu.build-id")
	if section == nil {
		return ""
	}

	data, err := section.Data()
	if err != nil || len(data) < 16 {
		return ""
	}

	nameSize := file.ByteOrder.Uint32(data[0:4])
	descSize := file.ByteOrder.Uint32(data[4:8])
	noteType := file.ByteOrder.Uint32(data[8:12])

	const gnuBuildID = 3
	if noteType != gnuBuildID || !bytes.HasPrefix(data[12:], []byte("GNU\x00")) {
		return ""
	}

	// The note name is padded to a four-byte boundary.
	descStart := 12 + ((int(nameSize) + 3) &^ 3)
	if descStart+int(descSize) > len(data) {
		return ""
	}

	return hex.EncodeToString(data[descStart : descStart+int(descSize)])
}

// symtabFunctions falls back to the static symbol table. Zero-size entries
// on x86-64 are kept only when their first bytes decode as an instruction,
// which filters out data mislabelled as functions.
func (r *ELFSymbolReader) symtabFunctions(file *elf.File) []rawFunc {
	symbols, err := file.Symbols()
	if err != nil {
		slog.Debug("no static symbol table", "error", err)
		return nil
	}

	var functions []rawFunc

	for _, sym := range symbols {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Name == "" {
			continue
		}

		if sym.Section == elf.SHN_UNDEF || int(sym.Section) >= len(file.Sections) {
			// Imported, not defined in this binary.
			continue
		}

		if sym.Size == 0 && !startsWithInstruction(file, sym) {
			continue
		}

		functions = append(functions, rawFunc{name: sym.Name, start: sym.Value, end: sym.Value + sym.Size})
	}

	return functions
}

// startsWithInstruction decodes the first bytes at the symbol's address. It
// only judges x86-64 binaries; other machines keep their zero-size entries.
func startsWithInstruction(file *elf.File, sym elf.Symbol) bool {
	if file.Machine != elf.EM_X86_64 {
		return true
	}

	section := file.Sections[sym.Section]
	if section.Flags&elf.SHF_EXECINSTR == 0 {
		return false
	}

	data, err := section.Data()
	if err != nil || sym.Value < section.Addr {
		return false
	}

	offset := sym.Value - section.Addr
	if offset >= uint64(len(data)) {
		return false
	}

	window := data[offset:]
	if len(window) > 16 {
		window = window[:16]
	}

	_, err = x86asm.Decode(window, 64)

	return err == nil
}

// Loader and compiler scaffolding never counts toward coverage. The tracer
// plugin ignores the same names, so both sides agree on the universe.
var scaffoldingNames = map[string]struct{}{
	"main":     {},
	"_init":    {},
	"_fini":    {},
	"_start":   {},
	".plt":     {},
	".plt.got": {},
	".plt.sec": {},
}

func isRelevantFunction(name string) bool {
	if _, ok := scaffoldingNames[name]; ok {
		return false
	}

	if strings.HasSuffix(name, "@plt") || strings.HasPrefix(name, "__") {
		return false
	}

	return true
}

// buildSymbolSet orders functions by ascending start address, drops
// irrelevant and duplicate names keeping the lowest-address occurrence, and
// closes open ranges against the next function's start.
func buildSymbolSet(functions []rawFunc) m.SymbolSet {
	relevant := make([]rawFunc, 0, len(functions))

	for _, fn := range functions {
		if !isRelevantFunction(fn.name) {
			continue
		}

		fn.name = demangle.Filter(fn.name)
		relevant = append(relevant, fn)
	}

	sort.SliceStable(relevant, func(i, j int) bool {
		if relevant[i].start != relevant[j].start {
			return relevant[i].start < relevant[j].start
		}

		return relevant[i].name < relevant[j].name
	})

	seen := make(map[string]struct{}, len(relevant))
	symbols := make([]m.Symbol, 0, len(relevant))

	var ignored []string

	for _, fn := range relevant {
		if _, dup := seen[fn.name]; dup {
			ignored = append(ignored, fn.name)
			continue
		}

		seen[fn.name] = struct{}{}
		symbols = append(symbols, m.Symbol{Name: fn.name, Start: fn.start, End: fn.end})
	}

	for i := range symbols {
		if symbols[i].End > symbols[i].Start {
			continue
		}

		if i+1 < len(symbols) {
			symbols[i].End = symbols[i+1].Start
		} else {
			symbols[i].End = symbols[i].Start
		}
	}

	return m.SymbolSet{Symbols: symbols, Ignored: ignored}
}
