// Package winmeta implements the Windows metadata harvester (§4.E): given
// a parsed dentry tree, it finds the most plausible Windows installation
// root among its top-level children and copies a curated set of
// properties (architecture, edition, product name, version, build,
// installed UI languages) into an external XML property setter. Every
// external dependency — blob content, XML properties, registry hive
// parsing — is an interface the caller supplies; this package has no
// opinion on how any of them are actually implemented (§1, §6).
package winmeta

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/xerrors"

	"github.com/gowim/wim/dentry"
	"github.com/gowim/wim/wimtree"
	"github.com/gowim/wim/wimtypes"
)

// Warnings receives non-fatal anomaly reports, the same shape dentry.Parse
// and wimtree accept.
type Warnings = wimtree.Warnings

// BlobReader reads file content by hash (§6 "Blob provider").
type BlobReader interface {
	GetBlob(hash wimtypes.Hash) (io.ReadCloser, error)
	BlobSize(hash wimtypes.Hash) (uint64, error)
}

// XMLSetter sets an image's XML properties (§6 "XML property setter").
// Path syntax supports nesting via "/" and ordered siblings via "NAME[k]".
// Any error returned is treated as the out-of-memory status §6 names as
// the only failure mode of this interface, and propagates fatally.
type XMLSetter interface {
	Set(imageID int, path string, value string) error
}

// RegistryHive is the query surface over an already-validated registry
// hive (§6 "Registry-hive parser"), minus the validate() query, which
// RegistryHiveParser.Parse performs up front. found=false is the NOT_FOUND
// status; a non-nil error not matching ErrOutOfMemory is INVALID and is
// only ever warned about, never propagated.
type RegistryHive interface {
	GetString(key, value string) (s string, found bool, err error)
	GetNumber(key, value string) (n uint64, found bool, err error)
	ListSubkeys(key string) ([]string, error)
}

// RegistryHiveParser validates and parses a registry hive blob, the
// validate() query of §6's registry-hive parser surface.
type RegistryHiveParser interface {
	Parse(blob []byte) (RegistryHive, error)
}

// ErrOutOfMemory is the one fatal status code §6 and §4.E's "All failures
// except out-of-memory are warnings" carve out. Implementations of
// RegistryHive/RegistryHiveParser/XMLSetter should wrap it (via
// xerrors.Errorf("...: %w", ErrOutOfMemory)) to signal it specifically;
// any other error is treated as a recoverable, warn-and-continue failure.
var ErrOutOfMemory = xerrors.New("winmeta: out of memory")

func isOutOfMemory(err error) bool {
	return xerrors.Is(err, ErrOutOfMemory)
}

// Option configures Harvest.
type Option func(*config)

type config struct {
	warn    Warnings
	imageID int
	ctx     context.Context
}

// WithWarnings routes non-fatal anomaly reports to w. Without it, Harvest
// discards them.
func WithWarnings(w Warnings) Option {
	return func(c *config) { c.warn = w }
}

// WithImageID sets the image index Harvest writes XML properties under
// (defaults to 1).
func WithImageID(id int) Option {
	return func(c *config) { c.imageID = id }
}

// WithContext supplies a cancellation context, observed per blob read —
// the "coarse point" §5 specifies for the harvester.
func WithContext(ctx context.Context) Option {
	return func(c *config) { c.ctx = ctx }
}

var nopWarnings = discardWarnings{}

type discardWarnings struct{}

func (discardWarnings) Warnf(string, ...interface{}) {}

// Harvest implements §4.E end to end: it scores tree's top-level
// directories as candidate Windows system roots, and for the best
// candidate reads kernel32.dll, the SOFTWARE hive and the SYSTEM hive (via
// blobs and hiveParser) to populate xml. It never fails for a missing or
// malformed source; only ErrOutOfMemory (from any collaborator) or
// caller-requested cancellation propagate.
func Harvest(tree *wimtree.Tree, blobs BlobReader, xml XMLSetter, hiveParser RegistryHiveParser, opts ...Option) error {
	cfg := config{warn: nopWarnings, imageID: 1, ctx: context.Background()}
	for _, o := range opts {
		o(&cfg)
	}
	if tree == nil || tree.Root == nil {
		return nil
	}

	root, score := pickSystemRoot(tree.Root)
	if root == nil || score == 0 {
		return nil
	}
	if err := setXML(xml, cfg, "WINDOWS/SYSTEMROOT", strings.ToUpper(root.Node.Name)); err != nil {
		return err
	}

	if err := harvestKernel32(cfg, root, blobs, xml); err != nil {
		return err
	}
	if err := harvestSoftwareHive(cfg, root, blobs, xml, hiveParser); err != nil {
		return err
	}
	if err := harvestSystemHive(cfg, root, blobs, xml, hiveParser); err != nil {
		return err
	}
	return nil
}

// pickSystemRoot implements §4.E's candidate-scoring and tie-break rule.
func pickSystemRoot(root *wimtree.Dentry) (*wimtree.Dentry, int) {
	var best *wimtree.Dentry
	bestScore := -1
	for _, c := range root.Children() {
		if !c.IsDir() {
			continue
		}
		score := systemRootScore(c)
		if score == 0 {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore = c, score
		case score == bestScore && strings.EqualFold(c.Node.Name, "Windows") && !strings.EqualFold(best.Node.Name, "Windows"):
			best = c
		}
	}
	if bestScore <= 0 {
		return nil, 0
	}
	return best, bestScore
}

func systemRootScore(dir *wimtree.Dentry) int {
	sys32, ok := dir.Lookup("System32", wimtree.Insensitive)
	if !ok || !sys32.IsDir() {
		return 0
	}
	score := 0
	if _, ok := sys32.Lookup("kernel32.dll", wimtree.Insensitive); ok {
		score++
	}
	if configFileExists(sys32, "SOFTWARE") {
		score++
	}
	if configFileExists(sys32, "SYSTEM") {
		score++
	}
	return score
}

func configFileExists(sys32 *wimtree.Dentry, name string) bool {
	cfgDir, ok := sys32.Lookup("config", wimtree.Insensitive)
	if !ok || !cfgDir.IsDir() {
		return false
	}
	_, ok = cfgDir.Lookup(name, wimtree.Insensitive)
	return ok
}

// unnamedHash returns the hash of inode's unnamed data stream, or the zero
// hash if it has none.
func unnamedHash(inode *dentry.Inode) wimtypes.Hash {
	for _, s := range inode.Streams {
		if s.IsUnnamed() && s.Type == wimtypes.StreamData {
			return s.Hash
		}
	}
	return wimtypes.Hash{}
}

// readConfigBlob reads <root>/System32/config/<name>'s unnamed data
// stream, warning and returning ok=false for any missing path element or
// read failure (none of which are fatal).
func readConfigBlob(cfg config, root *wimtree.Dentry, name string, blobs BlobReader) ([]byte, bool, error) {
	if err := cfg.ctx.Err(); err != nil {
		return nil, false, err
	}
	sys32, ok := root.Lookup("System32", wimtree.Insensitive)
	if !ok {
		cfg.warn.Warnf("winmeta: %s: System32 not found", name)
		return nil, false, nil
	}
	cfgDir, ok := sys32.Lookup("config", wimtree.Insensitive)
	if !ok {
		cfg.warn.Warnf("winmeta: %s: System32/config not found", name)
		return nil, false, nil
	}
	f, ok := cfgDir.Lookup(name, wimtree.Insensitive)
	if !ok {
		cfg.warn.Warnf("winmeta: System32/config/%s not found", name)
		return nil, false, nil
	}
	hash := unnamedHash(f.Node.Inode)
	if hash.IsZero() {
		cfg.warn.Warnf("winmeta: System32/config/%s has no data", name)
		return nil, false, nil
	}
	rc, err := blobs.GetBlob(hash)
	if err != nil {
		cfg.warn.Warnf("winmeta: reading %s blob: %v", name, err)
		return nil, false, nil
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		cfg.warn.Warnf("winmeta: reading %s blob: %v", name, err)
		return nil, false, nil
	}
	return data, true, nil
}

func setXML(xml XMLSetter, cfg config, path, value string) error {
	if err := xml.Set(cfg.imageID, path, value); err != nil {
		return xerrors.Errorf("winmeta: set %s: %w", path, err)
	}
	return nil
}

func hiveString(cfg config, hive RegistryHive, key, value string) (string, bool, error) {
	s, found, err := hive.GetString(key, value)
	if err != nil {
		if isOutOfMemory(err) {
			return "", false, err
		}
		cfg.warn.Warnf("winmeta: %s\\%s: %v", key, value, err)
		return "", false, nil
	}
	return s, found, nil
}

func hiveNumber(cfg config, hive RegistryHive, key, value string) (uint64, bool, error) {
	n, found, err := hive.GetNumber(key, value)
	if err != nil {
		if isOutOfMemory(err) {
			return 0, false, err
		}
		cfg.warn.Warnf("winmeta: %s\\%s: %v", key, value, err)
		return 0, false, nil
	}
	return n, found, nil
}

func parseDottedVersion(s string) (major, minor uint64, ok bool) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	m, err1 := strconv.ParseUint(parts[0], 10, 32)
	n, err2 := strconv.ParseUint(parts[1], 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return m, n, true
}

// harvestKernel32 implements §4.E's PE-header step.
func harvestKernel32(cfg config, root *wimtree.Dentry, blobs BlobReader, xml XMLSetter) error {
	if err := cfg.ctx.Err(); err != nil {
		return err
	}
	sys32, ok := root.Lookup("System32", wimtree.Insensitive)
	if !ok {
		return nil
	}
	k32, ok := sys32.Lookup("kernel32.dll", wimtree.Insensitive)
	if !ok {
		return nil
	}
	hash := unnamedHash(k32.Node.Inode)
	if hash.IsZero() {
		return nil
	}
	rc, err := blobs.GetBlob(hash)
	if err != nil {
		cfg.warn.Warnf("winmeta: reading kernel32.dll blob: %v", err)
		return nil
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		cfg.warn.Warnf("winmeta: reading kernel32.dll blob: %v", err)
		return nil
	}
	arch, ok := parsePEMachine(data)
	if !ok {
		cfg.warn.Warnf("winmeta: kernel32.dll: could not parse PE header")
		return nil
	}
	return setXML(xml, cfg, "WINDOWS/ARCH", strconv.Itoa(arch))
}

// PE machine-type constants, grounded on saferwall-pe's
// ImageFileMachine* constants (pe.go).
const (
	peMachineI386  = 0x14c
	peMachineARM   = 0x1c0
	peMachineARMNT = 0x1c4
	peMachineARM64 = 0xaa64
	peMachineIA64  = 0x200
	peMachineAMD64 = 0x8664
)

// windowsAPIArch maps a PE machine code to the Windows
// PROCESSOR_ARCHITECTURE_* value the spec asks for.
func windowsAPIArch(machine uint16) (int, bool) {
	switch machine {
	case peMachineI386:
		return 0, true // PROCESSOR_ARCHITECTURE_INTEL
	case peMachineARM, peMachineARMNT:
		return 5, true // PROCESSOR_ARCHITECTURE_ARM
	case peMachineIA64:
		return 6, true // PROCESSOR_ARCHITECTURE_IA64
	case peMachineAMD64:
		return 9, true // PROCESSOR_ARCHITECTURE_AMD64
	case peMachineARM64:
		return 12, true // PROCESSOR_ARCHITECTURE_ARM64
	default:
		return 0, false
	}
}

// parsePEMachine validates e_lfanew and the "PE\0\0" signature and reads
// the machine word at PE-header + 4 (§4.E).
func parsePEMachine(data []byte) (int, bool) {
	if len(data) < 0x40 {
		return 0, false
	}
	lfanew := binary.LittleEndian.Uint32(data[0x3c:0x40])
	if uint64(lfanew)+6 > uint64(len(data)) {
		return 0, false
	}
	sig := data[lfanew : lfanew+4]
	if sig[0] != 'P' || sig[1] != 'E' || sig[2] != 0 || sig[3] != 0 {
		return 0, false
	}
	machine := binary.LittleEndian.Uint16(data[lfanew+4 : lfanew+6])
	return windowsAPIArch(machine)
}

// harvestSoftwareHive implements §4.E's SOFTWARE-hive step.
func harvestSoftwareHive(cfg config, root *wimtree.Dentry, blobs BlobReader, xml XMLSetter, hiveParser RegistryHiveParser) error {
	data, ok, err := readConfigBlob(cfg, root, "SOFTWARE", blobs)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	hive, err := hiveParser.Parse(data)
	if err != nil {
		if isOutOfMemory(err) {
			return err
		}
		cfg.warn.Warnf("winmeta: SOFTWARE hive: %v", err)
		return nil
	}

	const base = `Microsoft\Windows NT\CurrentVersion`
	copies := []struct {
		value string
		paths []string
	}{
		{"EditionID", []string{"FLAGS", "WINDOWS/EDITIONID"}},
		{"ProductName", []string{"DISPLAYNAME", "DISPLAYDESCRIPTION", "WINDOWS/PRODUCTNAME"}},
		{"InstallationType", []string{"WINDOWS/INSTALLATIONTYPE"}},
	}
	for _, c := range copies {
		s, found, err := hiveString(cfg, hive, base, c.value)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		for _, p := range c.paths {
			if err := setXML(xml, cfg, p, s); err != nil {
				return err
			}
		}
	}

	major, hasMajor, err := hiveNumber(cfg, hive, base, "CurrentMajorVersionNumber")
	if err != nil {
		return err
	}
	minor, hasMinor, err := hiveNumber(cfg, hive, base, "CurrentMinorVersionNumber")
	if err != nil {
		return err
	}
	if !hasMajor || !hasMinor {
		s, found, err := hiveString(cfg, hive, base, "CurrentVersion")
		if err != nil {
			return err
		}
		if found {
			if m, n, ok := parseDottedVersion(s); ok {
				major, minor, hasMajor, hasMinor = m, n, true, true
			}
		}
	}
	if hasMajor {
		if err := setXML(xml, cfg, "WINDOWS/VERSION/MAJOR", strconv.FormatUint(major, 10)); err != nil {
			return err
		}
	}
	if hasMinor {
		if err := setXML(xml, cfg, "WINDOWS/VERSION/MINOR", strconv.FormatUint(minor, 10)); err != nil {
			return err
		}
	}

	build, found, err := hiveString(cfg, hive, base, "CurrentBuild")
	if err != nil {
		return err
	}
	if found && strings.Contains(build, ".") {
		build, found, err = hiveString(cfg, hive, base, "CurrentBuildNumber")
		if err != nil {
			return err
		}
	}
	if found {
		if err := setXML(xml, cfg, "WINDOWS/VERSION/BUILD", build); err != nil {
			return err
		}
	}
	return nil
}

// harvestSystemHive implements §4.E's SYSTEM-hive step.
func harvestSystemHive(cfg config, root *wimtree.Dentry, blobs BlobReader, xml XMLSetter, hiveParser RegistryHiveParser) error {
	data, ok, err := readConfigBlob(cfg, root, "SYSTEM", blobs)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	hive, err := hiveParser.Parse(data)
	if err != nil {
		if isOutOfMemory(err) {
			return err
		}
		cfg.warn.Warnf("winmeta: SYSTEM hive: %v", err)
		return nil
	}

	if s, found, err := hiveString(cfg, hive, `ControlSet001\Control\Windows`, "CSDBuildNumber"); err != nil {
		return err
	} else if found {
		if err := setXML(xml, cfg, "WINDOWS/VERSION/SPBUILD", s); err != nil {
			return err
		}
	}
	if n, found, err := hiveNumber(cfg, hive, `ControlSet001\Control\Windows`, "CSDVersion"); err != nil {
		return err
	} else if found {
		if err := setXML(xml, cfg, "WINDOWS/VERSION/SPLEVEL", strconv.FormatUint(n>>8, 10)); err != nil {
			return err
		}
	}

	docCopies := []struct{ key, value, path string }{
		{`ControlSet001\Control\ProductOptions`, "ProductType", "WINDOWS/PRODUCTTYPE"},
		{`ControlSet001\Control\ProductOptions`, "ProductSuite", "WINDOWS/PRODUCTSUITE"},
		{`ControlSet001\Control\Hal`, "HalInterfaceType", "WINDOWS/HAL"},
	}
	for _, c := range docCopies {
		s, found, err := hiveString(cfg, hive, c.key, c.value)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := setXML(xml, cfg, c.path, s); err != nil {
			return err
		}
	}

	const uiLangKey = `ControlSet001\Control\MUI\UILanguages`
	subkeys, err := hive.ListSubkeys(uiLangKey)
	if err != nil {
		if isOutOfMemory(err) {
			return err
		}
		cfg.warn.Warnf("winmeta: SYSTEM %s: %v", uiLangKey, err)
		subkeys = nil
	}
	for i, name := range subkeys {
		path := fmt.Sprintf("WINDOWS/LANGUAGES/LANGUAGE[%d]", i+1)
		if err := setXML(xml, cfg, path, name); err != nil {
			return err
		}
	}

	if idStr, found, err := hiveString(cfg, hive, `ControlSet001\Control\Nls\Language`, "InstallLanguage"); err != nil {
		return err
	} else if found {
		id, parseErr := strconv.ParseUint(strings.TrimSpace(idStr), 16, 32)
		if parseErr != nil {
			cfg.warn.Warnf("winmeta: InstallLanguage %q: %v", idStr, parseErr)
		} else if name, ok := lookupLanguageName(uint32(id)); ok {
			if err := setXML(xml, cfg, "WINDOWS/LANGUAGES/DEFAULT", name); err != nil {
				return err
			}
		} else {
			cfg.warn.Warnf("winmeta: unknown install language id 0x%x", id)
		}
	}
	return nil
}

// LanguageNames is a small curated subset of well-known Windows LCIDs,
// keyed by numeric LCID (written in hex, the form InstallLanguage uses). It is deliberately not exhaustive: the full
// LCID table is reference data, not engineering, and out of this
// package's scope.
var LanguageNames = map[uint32]string{
	0x0409: "en-US",
	0x0809: "en-GB",
	0x0407: "de-DE",
	0x040c: "fr-FR",
	0x0410: "it-IT",
	0x0411: "ja-JP",
	0x0412: "ko-KR",
	0x0804: "zh-CN",
	0x0404: "zh-TW",
	0x0419: "ru-RU",
	0x040a: "es-ES",
	0x0416: "pt-BR",
	0x0413: "nl-NL",
	0x041d: "sv-SE",
	0x0415: "pl-PL",
}

// languageIDs is LanguageNames' keys, sorted once, giving §4.E's "sorted
// (id -> name-offset) binary-search table" shape without a packed C-style
// string pool (a plain Go map already holds the names).
var languageIDs = sortedLanguageIDs()

func sortedLanguageIDs() []uint32 {
	ids := make([]uint32, 0, len(LanguageNames))
	for id := range LanguageNames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func lookupLanguageName(id uint32) (string, bool) {
	i := sort.Search(len(languageIDs), func(i int) bool { return languageIDs[i] >= id })
	if i < len(languageIDs) && languageIDs[i] == id {
		return LanguageNames[id], true
	}
	return "", false
}
