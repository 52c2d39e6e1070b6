package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ilramdhan/doorcalc/config"
	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/domain/repository"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/persistence"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/pricelist"
	"github.com/ilramdhan/doorcalc/pkg/database"
	"github.com/ilramdhan/doorcalc/pkg/logger"
)

var (
	productCount = flag.Int("products", 10000, "Number of synthetic products to generate")
	batchSize    = flag.Int("batch", 5000, "Batch size for COPY operations")
	workerCount  = flag.Int("workers", 4, "Number of parallel workers")
	importPath   = flag.String("import", "", "Import products from an .xlsx price list instead of generating them")
	templatePath = flag.String("template", "", "Write a sample .xlsx price list to this path and exit")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: "text"})

	if *templatePath != "" {
		if err := writeTemplate(*templatePath); err != nil {
			fatal("failed to write template", err)
		}
		log.Info("price list template written", slog.String("path", *templatePath))
		return
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║               DOOR CATALOG - DATA SEEDER                      ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Println()

	ctx := context.Background()
	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		fatal("failed to connect to database", err)
	}
	defer pool.Close()

	repo := persistence.NewCatalogRepository(pool)
	start := time.Now()
	var metrics PerformanceMetrics

	if *importPath != "" {
		metrics, err = importPriceList(ctx, repo, *importPath)
	} else {
		log.Info("generating catalog",
			slog.Int("products", *productCount),
			slog.Int("batch", *batchSize),
			slog.Int("workers", *workerCount),
			slog.Int("cpus", runtime.NumCPU()))
		metrics, err = seedSynthetic(ctx, repo)
	}
	if err != nil {
		fatal("seeding failed", err)
	}
	metrics.TotalTime = time.Since(start)

	printPerformanceSummary(metrics)
}

// PerformanceMetrics holds timing and throughput data
type PerformanceMetrics struct {
	Categories   int64
	Products     int64
	Rejected     int64
	CategoryTime time.Duration
	ProductTime  time.Duration
	TotalTime    time.Duration
}

func printPerformanceSummary(m PerformanceMetrics) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                  PERFORMANCE SUMMARY                          ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  %-20s %38v ║\n", "Total Time:", m.TotalTime.Round(time.Millisecond))
	fmt.Printf("║  %-20s %38v ║\n", "Categories:", m.CategoryTime.Round(time.Millisecond))
	fmt.Printf("║  %-20s %38v ║\n", "Products:", m.ProductTime.Round(time.Millisecond))
	fmt.Println("╠───────────────────────────────────────────────────────────────╣")
	fmt.Printf("║  %-20s %38s ║\n", "Categories:", formatNumber(m.Categories))
	fmt.Printf("║  %-20s %38s ║\n", "Products:", formatNumber(m.Products))
	if m.Rejected > 0 {
		fmt.Printf("║  %-20s %38s ║\n", "Rejected rows:", formatNumber(m.Rejected))
	}
	if m.ProductTime.Seconds() > 0 {
		fmt.Printf("║  %-20s %34.0f /s ║\n", "Throughput:", float64(m.Products)/m.ProductTime.Seconds())
	}
	fmt.Println("╠───────────────────────────────────────────────────────────────╣")
	fmt.Printf("║  %-20s %35s MB ║\n", "Total Allocated:", formatNumber(int64(memStats.TotalAlloc/1024/1024)))
	fmt.Printf("║  %-20s %38d ║\n", "GC Cycles:", memStats.NumGC)
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
}

func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	var result []rune
	for i, r := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, r)
	}
	return string(result)
}

func importPriceList(ctx context.Context, repo repository.CatalogRepository, path string) (PerformanceMetrics, error) {
	var m PerformanceMetrics

	f, err := os.Open(path)
	if err != nil {
		return m, fmt.Errorf("failed to open price list: %w", err)
	}
	defer f.Close()

	imp, err := pricelist.Read(f)
	if err != nil {
		return m, err
	}
	for _, e := range imp.Errors {
		slog.Warn("row rejected", slog.Int("row", e.Row), slog.String("field", e.Field), slog.String("message", e.Message))
	}
	m.Rejected = int64(len(imp.Errors))

	phase := time.Now()
	if m.Categories, err = repo.Categories().CreateBatch(ctx, imp.Categories); err != nil {
		return m, err
	}
	m.CategoryTime = time.Since(phase)

	phase = time.Now()
	for start := 0; start < len(imp.Products); start += *batchSize {
		end := min(start+*batchSize, len(imp.Products))
		n, err := repo.Products().CreateBatch(ctx, imp.Products[start:end])
		if err != nil {
			return m, err
		}
		m.Products += n
	}
	m.ProductTime = time.Since(phase)

	slog.Info("price list imported", slog.Int("rows", imp.TotalRows), slog.Int64("products", m.Products), slog.Int64("rejected", m.Rejected))
	return m, nil
}

// catalogTree is the fixed category tree synthetic products are spread over.
func catalogTree() (roots []*entity.Category, leaves []*entity.Category) {
	node := func(name string, subs ...*entity.Category) *entity.Category {
		return &entity.Category{ID: uuid.New(), Name: name, Subcategories: subs}
	}
	interior := node("Межкомнатные")
	entrance := node("Входные")
	sliding := node("Раздвижные")
	handles := node("Ручки")
	hinges := node("Петли")
	roots = []*entity.Category{
		node("Двери", interior, entrance, sliding),
		node("Фурнитура", handles, hinges),
	}
	return roots, []*entity.Category{interior, entrance, sliding, handles, hinges}
}

func seedSynthetic(ctx context.Context, repo repository.CatalogRepository) (PerformanceMetrics, error) {
	var m PerformanceMetrics

	phase := time.Now()
	roots, leaves := catalogTree()
	n, err := repo.Categories().CreateBatch(ctx, roots)
	if err != nil {
		return m, err
	}
	m.Categories = n
	m.CategoryTime = time.Since(phase)

	phase = time.Now()
	batches := make(chan int, *workerCount*2)
	var (
		completed int64
		failed    int64
		wg        sync.WaitGroup
	)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c := atomic.LoadInt64(&completed)
				slog.Info("progress", slog.Int64("products", c), slog.Int("total", *productCount),
					slog.String("percent", fmt.Sprintf("%.1f", float64(c)/float64(*productCount)*100)))
			}
		}
	}()

	for w := 0; w < *workerCount; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for first := range batches {
				last := min(first+*batchSize, *productCount)
				products := make([]*entity.Product, 0, last-first)
				for i := first; i < last; i++ {
					products = append(products, syntheticProduct(rng, i, leaves))
				}
				n, err := repo.Products().CreateBatch(ctx, products)
				if err != nil {
					slog.Error("failed to insert products", slog.Int("worker", workerID), slog.Int("first", first), slog.Any("error", err))
					atomic.AddInt64(&failed, int64(len(products)))
					continue
				}
				atomic.AddInt64(&completed, n)
			}
		}(w)
	}

	for first := 0; first < *productCount; first += *batchSize {
		batches <- first
	}
	close(batches)
	wg.Wait()
	close(done)

	m.Products = atomic.LoadInt64(&completed)
	m.Rejected = atomic.LoadInt64(&failed)
	m.ProductTime = time.Since(phase)
	if m.Rejected > 0 {
		return m, fmt.Errorf("%d products could not be inserted", m.Rejected)
	}
	return m, nil
}

var (
	materials = []string{"oak", "pine", "ash", "mdf", "steel"}
	codes     = map[string]string{"oak": "OAK", "pine": "PIN", "ash": "ASH", "mdf": "MDF", "steel": "STL"}
	colors    = []string{"белый", "венге", "орех", "графит", "беленый дуб"}
	finishes  = []string{"шпон", "эмаль", "экошпон", "ПВХ"}
)

func syntheticProduct(rng *rand.Rand, i int, leaves []*entity.Category) *entity.Product {
	now := time.Now().UTC()
	category := leaves[i%len(leaves)]
	material := materials[rng.Intn(len(materials))]

	props := map[string]any{
		"material":  material,
		"color":     colors[rng.Intn(len(colors))],
		"finish":    finishes[rng.Intn(len(finishes))],
		"thickness": fmt.Sprintf("%d мм", 35+5*rng.Intn(4)),
		"width":     600 + 100*rng.Intn(4),
		"height":    2000,
		"glass":     rng.Intn(3) == 0,
	}
	price := 2500 + float64(rng.Intn(20000))
	if material == "steel" {
		price *= 2.5
	}

	sku := fmt.Sprintf("DOOR-%s-%03d", codes[material], i+1)
	return &entity.Product{
		ID:            uuid.New(),
		SKU:           sku,
		Name:          fmt.Sprintf("%s %s %d", category.Name, material, i),
		CategoryID:    category.ID,
		BasePrice:     float64(int64(price*100)) / 100,
		StockQuantity: int64(rng.Intn(50)),
		Properties:    props,
		Images:        []string{fmt.Sprintf("https://cdn.example.com/doors/%s-1.jpg", sku)},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func writeTemplate(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	entries := []pricelist.Entry{
		{SKU: "DOOR-OAK-001", Name: "Дверь дуб 800", Category: "Двери / Межкомнатные", Price: 4500, Stock: 12,
			Properties: map[string]any{"material": "oak", "thickness": "40 мм", "color": "орех"}},
		{SKU: "DOOR-STL-001", Name: "Дверь стальная", Category: "Двери / Входные", Price: 18990, Stock: 3,
			Properties: map[string]any{"material": "steel", "thickness": "80 мм"}},
		{SKU: "HNDL-CHR-001", Name: "Ручка хром", Category: "Фурнитура / Ручки", Price: 990, Stock: 120},
	}
	if err := pricelist.Write(f, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func fatal(msg string, err error) {
	slog.Error(msg, slog.Any("error", err))
	os.Exit(1)
}
