// Package universe discovers and maintains the set of symbols the engine
// trades, resolving user-facing aliases to the names a broker actually
// recognizes.
package universe

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/forgefx/paperbot/internal/broker"
)

// Config controls universe discovery and caps. It is a plain struct rather
// than a dependency on internal/config so this package stays testable
// without pulling in YAML parsing.
type Config struct {
	UseDiscovery       bool
	DiscoveryInterval  time.Duration
	PreferredSymbols   []string
	IncludeAssetClasses map[broker.AssetClass]bool
	MaxSymbolsTotal    int
	MaxPerClass        map[broker.AssetClass]int
}

// Manager owns the current tradeable symbol set and the alias table used
// to resolve user-facing names (e.g. "gold") to broker symbol names
// (e.g. "XAUUSD").
type Manager struct {
	br     broker.Broker
	cfg    Config
	logger *log.Logger

	mu            sync.Mutex
	aliases       map[string]string // lowercased alias -> canonical symbol
	known         []string          // all symbols last seen from DiscoverSymbols
	universe      []string          // current filtered/capped tradeable set
	lastDiscovery time.Time
}

// NewManager creates a Manager. aliases maps a canonical symbol name to its
// accepted aliases, as loaded from a symbols.yaml-style alias file.
func NewManager(br broker.Broker, cfg Config, aliases map[string][]string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		br:      br,
		cfg:     cfg,
		logger:  logger,
		aliases: invertAliases(aliases),
	}
}

// invertAliases turns canonical -> []alias into lowercased alias ->
// canonical, so Resolve is a single map lookup.
func invertAliases(aliases map[string][]string) map[string]string {
	inv := make(map[string]string)
	for canonical, names := range aliases {
		for _, alias := range names {
			inv[strings.ToLower(alias)] = canonical
		}
	}
	return inv
}

// Resolve maps a user-facing or configured symbol name to the broker's
// canonical symbol name. Precedence: exact match against known symbols,
// then the alias table, then a case-insensitive exact match, then a unique
// shortest-prefix match. Returns false if no known symbol matches.
func (m *Manager) Resolve(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(name)
}

func (m *Manager) resolveLocked(name string) (string, bool) {
	for _, k := range m.known {
		if k == name {
			return k, true
		}
	}
	if canonical, ok := m.aliases[strings.ToLower(name)]; ok {
		for _, k := range m.known {
			if k == canonical {
				return k, true
			}
		}
	}
	lower := strings.ToLower(name)
	for _, k := range m.known {
		if strings.ToLower(k) == lower {
			return k, true
		}
	}

	var matches []string
	for _, k := range m.known {
		if strings.HasPrefix(strings.ToLower(k), lower) {
			matches = append(matches, k)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	if len(matches) > 1 {
		sort.Slice(matches, func(i, j int) bool { return len(matches[i]) < len(matches[j]) })
		if len(matches[0]) < len(matches[1]) {
			return matches[0], true
		}
	}
	return "", false
}

// Refresh rediscovers the tradeable universe if discovery is enabled and
// the configured interval has elapsed, otherwise it resolves the
// preferred-symbols list as-is. It always returns the current universe.
func (m *Manager) Refresh(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	due := m.cfg.UseDiscovery && (m.lastDiscovery.IsZero() || time.Since(m.lastDiscovery) >= m.cfg.DiscoveryInterval)
	m.mu.Unlock()

	if !due {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(m.universe) == 0 {
			return m.buildFromPreferredLocked()
		}
		return append([]string(nil), m.universe...), nil
	}

	discovered, err := m.br.DiscoverSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("universe: discover symbols: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.known = discovered
	m.lastDiscovery = time.Now()

	universe, err := m.buildUniverseLocked(ctx)
	if err != nil {
		return nil, err
	}
	m.universe = universe
	return append([]string(nil), universe...), nil
}

func (m *Manager) buildFromPreferredLocked() ([]string, error) {
	var resolved []string
	for _, name := range m.cfg.PreferredSymbols {
		if canonical, ok := m.resolveLocked(name); ok {
			resolved = append(resolved, canonical)
		} else {
			m.logger.Printf("universe: preferred symbol %q could not be resolved", name)
		}
	}
	m.universe = resolved
	return append([]string(nil), resolved...), nil
}

// buildUniverseLocked filters discovered symbols by asset class and
// trade-allowed status, always keeps preferred symbols, then caps the
// remainder per asset class and in total. Must be called with m.mu held.
func (m *Manager) buildUniverseLocked(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var result []string
	perClass := make(map[broker.AssetClass]int)

	addSymbol := func(name string, class broker.AssetClass) {
		if seen[name] {
			return
		}
		seen[name] = true
		result = append(result, name)
		perClass[class]++
	}

	for _, name := range m.cfg.PreferredSymbols {
		canonical, ok := m.resolveLocked(name)
		if !ok {
			m.logger.Printf("universe: preferred symbol %q could not be resolved", name)
			continue
		}
		meta, err := m.br.SymbolInfo(ctx, canonical)
		if err != nil {
			m.logger.Printf("universe: symbol info for preferred %q: %v", canonical, err)
			continue
		}
		addSymbol(canonical, meta.AssetClass)
	}

	for _, name := range m.known {
		if seen[name] {
			continue
		}
		if m.cfg.MaxSymbolsTotal > 0 && len(result) >= m.cfg.MaxSymbolsTotal {
			break
		}
		meta, err := m.br.SymbolInfo(ctx, name)
		if err != nil {
			continue
		}
		if !meta.TradeAllowed {
			continue
		}
		if len(m.cfg.IncludeAssetClasses) > 0 && !m.cfg.IncludeAssetClasses[meta.AssetClass] {
			continue
		}
		if cap, ok := m.cfg.MaxPerClass[meta.AssetClass]; ok && cap > 0 && perClass[meta.AssetClass] >= cap {
			continue
		}
		addSymbol(name, meta.AssetClass)
	}

	return result, nil
}

// Anchor returns the symbol the scheduler polls to detect a new candle
// close — the first entry of the current universe, or the first preferred
// symbol if the universe hasn't been built yet.
func (m *Manager) Anchor() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.universe) > 0 {
		return m.universe[0], true
	}
	if len(m.cfg.PreferredSymbols) > 0 {
		return m.cfg.PreferredSymbols[0], true
	}
	return "", false
}

// Current returns the last computed universe without triggering a refresh.
func (m *Manager) Current() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.universe...)
}
