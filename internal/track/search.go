package track

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/csaeum/wsc-datalayer/internal/event"
)

const (
	searchOverlay   = ".search-suggest, .search-suggest-container"
	searchListing   = ".product-box, .cms-element-product-listing, .product-listing"
	listSuggest     = "search_suggest"
	listSearchPage  = "view_search_results"
	minSearchLength = 2
)

// handleSearchInput debounces live search keystrokes. The timer is
// single-flight: each qualifying keystroke cancels and restarts it, so only
// the final term of a burst is emitted. Terms under two characters or equal
// to the last emitted term are suppressed.
func (s *Session) handleSearchInput(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.searchValue = raw

	term := strings.TrimSpace(raw)
	if len(term) < minSearchLength || term == s.lastTerm {
		return
	}

	if s.searchTimer != nil {
		s.searchTimer.Stop()
	}
	s.searchTimer = time.AfterFunc(s.opts.DebounceWindow, func() {
		s.emitSearch(term)
	})
}

func (s *Session) emitSearch(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTerm = term

	s.pusher.Push(&event.Event{
		Event:      "search",
		SearchTerm: term,
		Ecommerce: &event.Ecommerce{
			ItemListID:   listSuggest,
			ItemListName: listSuggest,
			Items:        s.collectOverlayItems(),
		},
	})
}

// collectOverlayItems resolves the products currently shown in the
// suggestion overlay, indexed in display order. Unidentified entries are
// skipped.
func (s *Session) collectOverlayItems() []event.Item {
	if s.page == nil {
		return nil
	}
	overlay := s.page.Find(searchOverlay).First()
	if overlay.Length() == 0 {
		return nil
	}

	var items []event.Item
	overlay.Find("a").Each(func(i int, link *goquery.Selection) {
		item := s.extractor.FromListElement(link)
		if !item.Identified() {
			return
		}
		item.Index = i + 1
		items = append(items, item)
	})
	return items
}

// searchSelectClick emits select_item for clicks on suggestion-overlay
// products or search-results-page products, tagged with a list name
// distinguishing the two surfaces.
func (s *Session) searchSelectClick(target *goquery.Selection) {
	link := target.Closest("a")
	if link.Length() == 0 {
		return
	}

	inOverlay := target.Closest(searchOverlay).Length() > 0
	onSearchPage := s.isSearchPage() && target.Closest(searchListing).Length() > 0
	if !inOverlay && !onSearchPage {
		return
	}

	item := s.extractor.FromListElement(link)
	if !item.Identified() {
		return
	}

	listName := listSearchPage
	if inOverlay {
		listName = listSuggest
	}

	s.pusher.Push(&event.Event{
		Event:      "select_item",
		SearchTerm: s.resolveSearchTerm(),
		Ecommerce: &event.Ecommerce{
			ItemListID:   listName,
			ItemListName: listName,
			Items:        []event.Item{item},
		},
	})
}

func (s *Session) resolveSearchTerm() string {
	if term := strings.TrimSpace(s.searchValue); term != "" {
		return term
	}
	if s.pageURL != nil {
		return s.pageURL.Query().Get("search")
	}
	return ""
}

func (s *Session) isSearchPage() bool {
	if s.pageURL == nil {
		return false
	}
	if strings.Contains(s.pageURL.Path, "/search") {
		return true
	}
	return s.pageURL.Query().Has("search")
}
