package upload

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/panthuncia/openrendergraph/rhi"
)

// DefaultPageSize is the default size of a new upload Page.
const DefaultPageSize = 256 << 20 // 256 MiB

// MaxPageSize is the largest page the Ring Pager will ever size a
// request to.
const MaxPageSize = 4 << 30 // 4 GiB

// Page owns one host-visible GPU buffer used as a staging arena, plus
// a monotonically advancing tail offset into it.
type Page struct {
	Buf        rhi.Buffer
	tailOffset int64
}

// Cap returns the page's buffer capacity in bytes.
func (p *Page) Cap() int64 { return p.Buf.Cap() }

// alignUp rounds v up to the next multiple of align. align must be a
// positive power of two for callers on the texture path (512); the
// default buffer path uses alignment 1, for which alignUp is a no-op.
func alignUp(v, align int64) int64 {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// Pager is the Ring Pager: an ordered sequence of Pages with an
// active-page index and, per in-flight frame slot, the lowest page
// index that frame still needs. It is grounded on
// UploadManager::AllocateUploadRegion/ProcessDeferredReleases (the
// original C++ implementation of this exact design) and on
// gviegas/scene's engine/staging.go reserve/commit growth idiom,
// generalized from a bitmap-tracked shared buffer to the whole-page
// retirement model this spec requires.
type Pager struct {
	device   rhi.Device
	log      *zap.Logger
	pageSize int64

	pages         []*Page
	activePage    int
	frameStartPage []int
}

// NewPager creates a Pager with frames in-flight slots and the
// default page size. It allocates one initial page eagerly, matching
// UploadManager::Initialize's eager first-page allocation.
func NewPager(ctx context.Context, device rhi.Device, framesInFlight int, log *zap.Logger) (*Pager, error) {
	if framesInFlight < 1 {
		framesInFlight = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	pg := &Pager{
		device:         device,
		log:            log,
		pageSize:       DefaultPageSize,
		frameStartPage: make([]int, framesInFlight),
	}
	first, err := pg.newPage(ctx, pg.pageSize)
	if err != nil {
		return nil, err
	}
	pg.pages = append(pg.pages, first)
	return pg, nil
}

func (pg *Pager) newPage(ctx context.Context, size int64) (*Page, error) {
	buf, err := pg.device.NewBuffer(ctx, size, true, rhi.UCopySrc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", ErrOutOfHostMemory, rhi.ErrNoHostMemory, err)
	}
	return &Page{Buf: buf}, nil
}

// NumPages returns the current number of live pages, for tests and
// diagnostics.
func (pg *Pager) NumPages() int { return len(pg.pages) }

// ActivePage returns the index of the currently active page.
func (pg *Pager) ActivePage() int { return pg.activePage }

// Allocate returns an aligned region of size bytes inside the page
// ring: align the active page's tail, use it if it
// fits; otherwise advance to (or create) the next page and retry;
// failing that, allocate a dedicated page sized to the request.
func (pg *Pager) Allocate(ctx context.Context, size, alignment int64) (page *Page, offset int64, err error) {
	if alignment < 1 {
		alignment = 1
	}
	page = pg.pages[pg.activePage]
	aligned := alignUp(page.tailOffset, alignment)

	if aligned+size <= page.Cap() {
		page.tailOffset = aligned + size
		return page, aligned, nil
	}

	pg.activePage++
	if pg.activePage >= len(pg.pages) {
		allocSize := pg.pageSize
		if size > allocSize {
			allocSize = size
		}
		np, err := pg.newPage(ctx, allocSize)
		if err != nil {
			pg.activePage--
			return nil, 0, err
		}
		pg.pages = append(pg.pages, np)
	}
	page = pg.pages[pg.activePage]
	page.tailOffset = 0
	aligned = alignUp(page.tailOffset, alignment)

	if aligned+size <= page.Cap() {
		page.tailOffset = aligned + size
		return page, aligned, nil
	}

	// The freshly appended/selected page still cannot fit size
	// (only possible if size itself exceeds pg.pageSize): allocate a
	// dedicated page sized to the request.
	allocSize := pg.pageSize
	if size > allocSize {
		allocSize = size
	}
	dedicated, err := pg.newPage(ctx, allocSize)
	if err != nil {
		return nil, 0, err
	}
	pg.pages = append(pg.pages, dedicated)
	pg.activePage = len(pg.pages) - 1
	dedicated.tailOffset = size
	return dedicated, 0, nil
}

// Retire is called at end-of-frame for the slot whose GPU work has
// fully completed. It erases every page below the minimum
// frame-start page across all slots, always keeping at least one page
// alive, then records the current active page as this slot's new
// start for the next round.
func (pg *Pager) Retire(frameSlot int) {
	minStart := pg.frameStartPage[frameSlot]
	for i, start := range pg.frameStartPage {
		if i == frameSlot {
			continue
		}
		if start < minStart {
			minStart = start
		}
	}

	if minStart > 0 {
		eraseCount := minStart
		if eraseCount > len(pg.pages)-1 {
			eraseCount = len(pg.pages) - 1
		}
		if eraseCount > 0 {
			for _, p := range pg.pages[:eraseCount] {
				p.Buf.Destroy()
			}
			pg.pages = append([]*Page{}, pg.pages[eraseCount:]...)
			pg.activePage -= eraseCount
			for i := range pg.frameStartPage {
				if pg.frameStartPage[i] >= eraseCount {
					pg.frameStartPage[i] -= eraseCount
				} else {
					pg.frameStartPage[i] = 0
				}
			}
			pg.log.Debug("upload pager retired pages",
				zap.Int("frame_slot", frameSlot),
				zap.Int("erased", eraseCount),
				zap.Int("remaining", len(pg.pages)))
		}
	}

	pg.frameStartPage[frameSlot] = pg.activePage
}
