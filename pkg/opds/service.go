package opds

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/tinyopds/tinyopds/pkg/books"
	"github.com/tinyopds/tinyopds/pkg/config"
	"github.com/tinyopds/tinyopds/pkg/genres"
	"github.com/tinyopds/tinyopds/pkg/library"
	"github.com/tinyopds/tinyopds/pkg/translit"
)

// Service builds OPDS feeds from library queries.
type Service struct {
	lib      *library.Library
	taxonomy *genres.Taxonomy
	cfg      *config.Config
}

// NewService creates the feed builder.
func NewService(lib *library.Library, taxonomy *genres.Taxonomy, cfg *config.Config) *Service {
	return &Service{lib: lib, taxonomy: taxonomy, cfg: cfg}
}

// BuildRootFeed builds the root navigation catalog.
func (svc *Service) BuildRootFeed(baseURL string) *Feed {
	feed := NewFeed(baseURL+"/", "TinyOPDS")
	feed.Icon = baseURL + "/favicon.ico"
	feed.AddLink(RelSelf, baseURL+"/", MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/", MimeTypeNavigation)
	feed.AddLink(RelSearch, baseURL+"/search?searchTerm={searchTerms}", MimeTypeAtom)
	feed.AddLink(RelSearch, baseURL+"/opds-opensearch.xml", MimeTypeOpenSearch)

	entries := []struct {
		path    string
		title   string
		content string
	}{
		{"/authorsindex", svc.title("By authors", "По авторам"), fmt.Sprintf("%d authors", len(svc.lib.Authors()))},
		{"/sequencesindex", svc.title("By series", "По сериям"), fmt.Sprintf("%d series", len(svc.lib.Sequences()))},
		{"/genres", svc.title("By genres", "По жанрам"), fmt.Sprintf("%d genres", len(svc.lib.Genres()))},
		{"/newdate", svc.title("New books", "Новинки"), fmt.Sprintf("%d books total", svc.lib.Count())},
	}
	for _, e := range entries {
		entry := NewEntry(baseURL+e.path, e.title)
		entry.Content = &Content{Type: "text", Value: e.content}
		entry.AddLink(RelSubsection, baseURL+e.path, MimeTypeNavigation)
		feed.AddEntry(entry)
	}
	return feed
}

// BuildAuthorsIndexFeed browses the author index by growing prefix. Short
// partitions list authors directly; large ones expand one character deeper.
func (svc *Service) BuildAuthorsIndexFeed(baseURL, prefix string) *Feed {
	self := baseURL + "/authorsindex"
	if prefix != "" {
		self += "/" + url.PathEscape(prefix)
	}
	feed := NewFeed(self, svc.title("Authors", "Авторы"))
	feed.AddLink(RelSelf, self, MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/", MimeTypeNavigation)

	authors := svc.lib.GetAuthorsByName(prefix, false)
	if len(authors) <= svc.cfg.PageSize {
		for _, a := range authors {
			feed.AddEntry(svc.authorEntry(baseURL, a))
		}
		return feed
	}

	// Partition by the next rune after the prefix.
	type group struct {
		next  string
		count int
	}
	var order []string
	counts := map[string]int{}
	for _, a := range authors {
		runes := []rune(a)
		if len(runes) <= len([]rune(prefix)) {
			feed.AddEntry(svc.authorEntry(baseURL, a))
			continue
		}
		next := prefix + string(runes[len([]rune(prefix))])
		if _, ok := counts[next]; !ok {
			order = append(order, next)
		}
		counts[next]++
	}
	for _, next := range order {
		g := group{next: next, count: counts[next]}
		href := baseURL + "/authorsindex/" + url.PathEscape(g.next)
		entry := NewEntry(href, g.next)
		entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d authors", g.count)}
		entry.AddLink(RelSubsection, href, MimeTypeNavigation)
		feed.AddEntry(entry)
	}
	return feed
}

// BuildAuthorBooksFeed lists an author's books, paged.
func (svc *Service) BuildAuthorBooksFeed(baseURL, author string, page int, acceptFB2 bool) *Feed {
	self := baseURL + "/author/" + url.PathEscape(author)
	feed := NewFeed(self, author)
	feed.AddLink(RelSelf, self, MimeTypeAcquisition)
	feed.AddLink(RelStart, baseURL+"/", MimeTypeNavigation)

	svc.addBookPage(feed, baseURL, self, svc.lib.GetBooksByAuthor(author), page, acceptFB2)
	return feed
}

// BuildSequencesIndexFeed browses the series index by growing prefix.
func (svc *Service) BuildSequencesIndexFeed(baseURL, prefix string) *Feed {
	self := baseURL + "/sequencesindex"
	if prefix != "" {
		self += "/" + url.PathEscape(prefix)
	}
	feed := NewFeed(self, svc.title("Series", "Серии"))
	feed.AddLink(RelSelf, self, MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/", MimeTypeNavigation)

	var matched []string
	lower := strings.ToLower(prefix)
	for _, s := range svc.lib.Sequences() {
		if strings.HasPrefix(strings.ToLower(s), lower) {
			matched = append(matched, s)
		}
	}

	if len(matched) <= svc.cfg.PageSize {
		for _, s := range matched {
			href := baseURL + "/sequence/" + url.PathEscape(s)
			entry := NewEntry(href, s)
			entry.AddLink(RelSubsection, href, MimeTypeNavigation)
			feed.AddEntry(entry)
		}
		return feed
	}

	var order []string
	counts := map[string]int{}
	for _, s := range matched {
		runes := []rune(s)
		if len(runes) <= len([]rune(prefix)) {
			continue
		}
		next := prefix + string(runes[len([]rune(prefix))])
		if _, ok := counts[next]; !ok {
			order = append(order, next)
		}
		counts[next]++
	}
	for _, next := range order {
		href := baseURL + "/sequencesindex/" + url.PathEscape(next)
		entry := NewEntry(href, next)
		entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d series", counts[next])}
		entry.AddLink(RelSubsection, href, MimeTypeNavigation)
		feed.AddEntry(entry)
	}
	return feed
}

// BuildSequenceBooksFeed lists the books of one series, paged.
func (svc *Service) BuildSequenceBooksFeed(baseURL, sequence string, page int, acceptFB2 bool) *Feed {
	self := baseURL + "/sequence/" + url.PathEscape(sequence)
	feed := NewFeed(self, sequence)
	feed.AddLink(RelSelf, self, MimeTypeAcquisition)
	feed.AddLink(RelStart, baseURL+"/", MimeTypeNavigation)

	svc.addBookPage(feed, baseURL, self, svc.lib.GetBooksBySequence(sequence), page, acceptFB2)
	return feed
}

// BuildGenresFeed lists top-level genre categories, or the subgenres of one
// category.
func (svc *Service) BuildGenresFeed(baseURL, category string) *Feed {
	self := baseURL + "/genres"
	if category != "" {
		self += "/" + url.PathEscape(category)
	}
	feed := NewFeed(self, svc.title("Genres", "Жанры"))
	feed.AddLink(RelSelf, self, MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/", MimeTypeNavigation)

	// Only genres actually present in the catalog are offered.
	present := map[string]int{}
	for _, tag := range svc.lib.Genres() {
		present[tag] = len(svc.lib.GetBooksByGenre(tag))
	}

	ru := svc.cfg.RussianLanguage()
	for _, g := range svc.taxonomy.Genres {
		name := g.Name
		if ru && g.Translation != "" {
			name = g.Translation
		}

		if category == "" {
			count := 0
			for _, sg := range g.Subgenres {
				count += present[sg.Tag]
			}
			if count == 0 {
				continue
			}
			href := baseURL + "/genres/" + url.PathEscape(g.Name)
			entry := NewEntry(href, name)
			entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d books", count)}
			entry.AddLink(RelSubsection, href, MimeTypeNavigation)
			feed.AddEntry(entry)
			continue
		}

		if g.Name != category {
			continue
		}
		for _, sg := range g.Subgenres {
			count := present[sg.Tag]
			if count == 0 {
				continue
			}
			href := baseURL + "/genre/" + url.PathEscape(sg.Tag)
			entry := NewEntry(href, svc.taxonomy.Name(sg.Tag, ru))
			entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d books", count)}
			entry.AddLink(RelSubsection, href, MimeTypeNavigation)
			feed.AddEntry(entry)
		}
	}
	return feed
}

// BuildGenreBooksFeed lists the books of one genre tag, paged.
func (svc *Service) BuildGenreBooksFeed(baseURL, tag string, page int, acceptFB2 bool) *Feed {
	self := baseURL + "/genre/" + url.PathEscape(tag)
	feed := NewFeed(self, svc.taxonomy.Name(tag, svc.cfg.RussianLanguage()))
	feed.AddLink(RelSelf, self, MimeTypeAcquisition)
	feed.AddLink(RelStart, baseURL+"/", MimeTypeNavigation)

	svc.addBookPage(feed, baseURL, self, svc.lib.GetBooksByGenre(tag), page, acceptFB2)
	return feed
}

// BuildNewBooksFeed lists the most recently added books, paged.
func (svc *Service) BuildNewBooksFeed(baseURL string, page int, acceptFB2 bool) *Feed {
	self := baseURL + "/newdate"
	feed := NewFeed(self, svc.title("New books", "Новинки"))
	feed.AddLink(RelSelf, self, MimeTypeAcquisition)
	feed.AddLink(RelStart, baseURL+"/", MimeTypeNavigation)

	recent := svc.lib.GetBooksByTitle("")
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].AddedDate.After(recent[j].AddedDate)
	})
	svc.addBookPage(feed, baseURL, self, recent, page, acceptFB2)
	return feed
}

// BuildSearchFeed is OpenSearch phase 1: it suggests the author and title
// partitions matching the term.
func (svc *Service) BuildSearchFeed(baseURL, term string) *Feed {
	self := baseURL + "/search?searchTerm=" + url.QueryEscape(term)
	feed := NewFeed(self, svc.title("Search results", "Результаты поиска"))
	feed.AddLink(RelSelf, self, MimeTypeNavigation)
	feed.AddLink(RelStart, baseURL+"/", MimeTypeNavigation)

	authors := svc.lib.GetAuthorsByName(term, true)
	titles := svc.lib.GetBooksByTitle(term)

	if len(authors) > 0 {
		href := baseURL + "/search?searchType=authors&searchTerm=" + url.QueryEscape(term)
		entry := NewEntry(href, svc.title("Search in authors", "Поиск в авторах"))
		entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d authors", len(authors))}
		entry.AddLink(RelSubsection, href, MimeTypeNavigation)
		feed.AddEntry(entry)
	}
	if len(titles) > 0 {
		href := baseURL + "/search?searchType=books&searchTerm=" + url.QueryEscape(term)
		entry := NewEntry(href, svc.title("Search in titles", "Поиск в книгах"))
		entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d books", len(titles))}
		entry.AddLink(RelSubsection, href, MimeTypeNavigation)
		feed.AddEntry(entry)
	}
	return feed
}

// BuildSearchResults is OpenSearch phase 2: a paged result list. The query
// parameters round-trip verbatim in the prev/next links.
func (svc *Service) BuildSearchResults(baseURL, searchType, term string, page int, acceptFB2 bool) *Feed {
	self := fmt.Sprintf("%s/search?searchType=%s&searchTerm=%s", baseURL, url.QueryEscape(searchType), url.QueryEscape(term))
	feed := NewFeed(self, svc.title("Search results", "Результаты поиска"))
	feed.AddLink(RelSelf, self, MimeTypeAcquisition)
	feed.AddLink(RelStart, baseURL+"/", MimeTypeNavigation)

	if searchType == "authors" {
		authors := svc.lib.GetAuthorsByName(term, true)
		start, end := pageBounds(len(authors), page, svc.cfg.PageSize)
		for _, a := range authors[start:end] {
			feed.AddEntry(svc.authorEntry(baseURL, a))
		}
		svc.addPageLinks(feed, self, page, end < len(authors))
		return feed
	}

	svc.addBookPage(feed, baseURL, self, svc.lib.GetBooksByTitle(term), page, acceptFB2)
	return feed
}

// NewOpenSearch builds the OpenSearch description document.
func (svc *Service) NewOpenSearch(baseURL string) *OpenSearchDescription {
	return NewOpenSearchDescription("TinyOPDS", "Search the TinyOPDS catalog",
		baseURL+"/search?searchTerm={searchTerms}")
}

func (svc *Service) authorEntry(baseURL, author string) Entry {
	href := baseURL + "/author/" + url.PathEscape(author)
	entry := NewEntry(href, author)
	entry.Content = &Content{Type: "text", Value: fmt.Sprintf("%d books", len(svc.lib.GetBooksByAuthor(author)))}
	entry.AddLink(RelSubsection, href, MimeTypeAcquisition)
	return entry
}

// addBookPage appends one page of book entries plus prev/next links.
func (svc *Service) addBookPage(feed *Feed, baseURL, self string, list []*books.Book, page int, acceptFB2 bool) {
	start, end := pageBounds(len(list), page, svc.cfg.PageSize)
	for _, b := range list[start:end] {
		feed.AddEntry(svc.bookEntry(baseURL, b, acceptFB2))
	}
	svc.addPageLinks(feed, self, page, end < len(list))
}

func (svc *Service) addPageLinks(feed *Feed, self string, page int, hasNext bool) {
	sep := "?"
	if strings.Contains(self, "?") {
		sep = "&"
	}
	if page > 0 {
		feed.AddLink(RelPrevious, fmt.Sprintf("%s%spageNumber=%d", self, sep, page-1), MimeTypeAcquisition)
	}
	if hasNext {
		feed.AddLink(RelNext, fmt.Sprintf("%s%spageNumber=%d", self, sep, page+1), MimeTypeAcquisition)
	}
}

// bookEntry builds an acquisition entry. FB2-native readers get the FB2
// download link; everything else is offered EPUB, transcoded on demand.
func (svc *Service) bookEntry(baseURL string, b *books.Book, acceptFB2 bool) Entry {
	entry := NewEntry("urn:uuid:"+b.ID, b.Title)
	entry.Updated = b.AddedDate.UTC()
	entry.Language = b.Language
	if !b.BookDate.IsZero() {
		entry.Issued = fmt.Sprintf("%d", b.BookDate.Year())
	}
	for _, a := range b.Authors {
		entry.Authors = append(entry.Authors, Author{
			Name: a,
			URI:  baseURL + "/author/" + url.PathEscape(a),
		})
	}
	if b.Annotation != "" {
		entry.Content = &Content{Type: "text", Value: b.Annotation}
	}

	fileBase := DownloadName(b)
	if b.Type() == books.TypeFB2 && acceptFB2 {
		entry.AddLink(RelAcquisition,
			fmt.Sprintf("%s/%s/%s.fb2.zip", baseURL, b.ID, url.PathEscape(fileBase)), MimeTypeFB2Zip)
	} else {
		entry.AddLink(RelAcquisition,
			fmt.Sprintf("%s/%s/%s.epub", baseURL, b.ID, url.PathEscape(fileBase)), MimeTypeEPUB)
	}
	if b.HasCover {
		entry.AddLink(RelImage, fmt.Sprintf("%s/cover/%s.jpeg", baseURL, b.ID), MimeTypeJPEG)
		entry.AddLink(RelThumbnail, fmt.Sprintf("%s/thumbnail/%s.jpeg", baseURL, b.ID), MimeTypeJPEG)
	}
	return entry
}

// DownloadName derives the transliterated file base for a downloaded book:
// first author and title, underscore-joined.
func DownloadName(b *books.Book) string {
	author := ""
	if len(b.Authors) > 0 {
		author = b.Authors[0]
	}
	name := translit.FileName(author) + "_" + translit.FileName(b.Title)
	return strings.Trim(name, "_")
}

func (svc *Service) title(en, ru string) string {
	if svc.cfg.RussianLanguage() {
		return ru
	}
	return en
}

func pageBounds(total, page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	start := page * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return start, end
}
