package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

var featureNames = []string{"Level", "Health", "Energy", "Sanity"}

// rarityTable builds n rows with five rarity ranks that are separable on
// Health and Energy.
func rarityTable(t *testing.T, n int) *table.Table {
	t.Helper()
	rnd := rand.New(rand.NewSource(7))
	records := make([]table.Record, n)
	for i := range records {
		rank := i % 5
		records[i] = table.Record{
			"Level":  float64(1 + rnd.Intn(20)),
			"Health": float64(rank)*10 + rnd.Float64()*5,
			"Energy": float64(rank)*8 + rnd.Float64()*5,
			"Sanity": rnd.Float64() * 10,
			"Rarity": fmt.Sprintf("Rank %d", rank),
		}
	}
	tbl, err := table.FromRecords(records, append(featureNames, "Rarity")...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tbl
}

func trainMachine(t *testing.T, tbl *table.Table) *Machine {
	t.Helper()
	m, err := NewMachine(tbl, "Rarity", WithNEstimators(25), WithRandomState(42))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestNewMachinePredictsKnownLabel(t *testing.T) {
	tbl := rarityTable(t, 200)
	m := trainMachine(t, tbl)

	if m.Name != "Random Forest Classifier" {
		t.Fatalf("unexpected name %q", m.Name)
	}
	if got := m.Classes(); len(got) != 5 {
		t.Fatalf("expected 5 classes, got %v", got)
	}
	features, err := tbl.Drop("Rarity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 20; i++ {
		label, confidence, err := m.Predict(features.Subset([]int{i}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(label, "Rank ") {
			t.Fatalf("unexpected label %q", label)
		}
		if confidence < 1.0/5 || confidence > 1 {
			t.Fatalf("confidence out of range: %f", confidence)
		}
	}
}

func TestPredictUsesOnlyFirstRow(t *testing.T) {
	tbl := rarityTable(t, 100)
	m := trainMachine(t, tbl)
	features, _ := tbl.Drop("Rarity")

	batchLabel, batchConf, err := m.Predict(features)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstLabel, firstConf, err := m.Predict(features.Subset([]int{0}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batchLabel != firstLabel || batchConf != firstConf {
		t.Fatalf("batch answer (%s, %f) differs from first row (%s, %f)", batchLabel, batchConf, firstLabel, firstConf)
	}
}

func TestNewMachineMissingTarget(t *testing.T) {
	tbl := rarityTable(t, 20)
	features, _ := tbl.Drop("Rarity")

	_, err := NewMachine(features, "Rarity")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
	if schemaErr.Column != "Rarity" {
		t.Fatalf("unexpected column %q", schemaErr.Column)
	}
	if !errors.Is(err, table.ErrSchema) {
		t.Fatal("expected SchemaError to unwrap to table.ErrSchema")
	}
}

func TestNewMachineEmptyTable(t *testing.T) {
	schema := table.Schema{{Name: "Level", Kind: table.Numeric}, {Name: "Rarity", Kind: table.Categorical}}
	empty, err := table.New(schema, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewMachine(empty, "Rarity"); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
	if _, err := NewMachine(nil, "Rarity"); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset for nil table, got %v", err)
	}
	if _, err := NewMachine(empty, "Missing"); !errors.Is(err, table.ErrSchema) {
		t.Fatalf("expected empty dataset to unwrap to table.ErrSchema, got %v", err)
	}
}

func TestNewMachineRejectsTextFeature(t *testing.T) {
	schema := table.Schema{{Name: "Name", Kind: table.Text}, {Name: "Rarity", Kind: table.Categorical}}
	tbl, err := table.New(schema, [][]any{{"Grizzle", "Rank 0"}, {"Fang", "Rank 1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = NewMachine(tbl, "Rarity")
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) || schemaErr.Column != "Name" {
		t.Fatalf("expected SchemaError on Name, got %v", err)
	}
}

func TestNewMachineRejectsTargetOnlyTable(t *testing.T) {
	schema := table.Schema{{Name: "Rarity", Kind: table.Categorical}}
	tbl, _ := table.New(schema, [][]any{{"Rank 0"}})
	var schemaErr *SchemaError
	if _, err := NewMachine(tbl, "Rarity"); !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestPredictSchemaMismatch(t *testing.T) {
	tbl := rarityTable(t, 50)
	m := trainMachine(t, tbl)

	misordered, _ := tbl.Select("Health", "Level", "Energy", "Sanity")
	missing, _ := tbl.Select("Level", "Health", "Energy")
	extra, _ := tbl.Select("Level", "Health", "Energy", "Sanity", "Rarity")
	for name, rows := range map[string]*table.Table{"misordered": misordered, "missing": missing, "extra": extra} {
		_, _, err := m.Predict(rows)
		var schemaErr *SchemaError
		if !errors.As(err, &schemaErr) {
			t.Fatalf("%s: expected SchemaError, got %v", name, err)
		}
	}

	empty := tbl.Subset(nil)
	features, _ := empty.Drop("Rarity")
	if _, _, err := m.Predict(features); !errors.Is(err, ErrEmptyDataset) {
		t.Fatalf("expected ErrEmptyDataset, got %v", err)
	}
}

func TestCategoricalFeatures(t *testing.T) {
	records := make([]table.Record, 0, 60)
	for i := 0; i < 60; i++ {
		kind := []string{"Dragon", "Fey", "Undead"}[i%3]
		records = append(records, table.Record{
			"Type":   kind,
			"Level":  float64(i % 7),
			"Rarity": map[string]string{"Dragon": "Rank 3", "Fey": "Rank 1", "Undead": "Rank 0"}[kind],
		})
	}
	tbl, err := table.FromRecords(records, "Type", "Level", "Rarity")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, err := NewMachine(tbl, "Rarity", WithNEstimators(10), WithRandomState(1), WithMaxFeatures(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	label, confidence, err := m.PredictRecord(table.Record{"Type": "Dragon", "Level": 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "Rank 3" || confidence <= 0.5 {
		t.Fatalf("expected confident Rank 3, got %s (%f)", label, confidence)
	}

	var schemaErr *SchemaError
	if _, _, err := m.PredictRecord(table.Record{"Type": "Golem", "Level": 3}); !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError for unseen category, got %v", err)
	}
	if _, _, err := m.PredictRecord(table.Record{"Type": "Fey"}); !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError for missing feature, got %v", err)
	}
	if _, _, err := m.PredictRecord(table.Record{"Type": "Fey", "Level": 1, "Damage": "2d6"}); !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError for extra feature, got %v", err)
	}
	if _, _, err := m.PredictRecord(table.Record{"Type": "Fey", "Level": "high"}); !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError for non-numeric value, got %v", err)
	}
	if _, _, err := m.PredictRecord(table.Record{"Type": "Fey", "Level": 1, "Rarity": "ignored"}); err != nil {
		t.Fatalf("target key should be ignored, got %v", err)
	}
}

func TestNumericTarget(t *testing.T) {
	records := []table.Record{
		{"x": 1, "y": 0}, {"x": 2, "y": 0}, {"x": 8, "y": 1}, {"x": 9, "y": 1},
	}
	tbl, _ := table.FromRecords(records, "x", "y")
	m, err := NewMachine(tbl, "y", WithNEstimators(5), WithRandomState(3), WithBootstrap(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label, _, err := m.PredictRecord(table.Record{"x": 8.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "1" {
		t.Fatalf("expected label 1, got %q", label)
	}
}

func TestManyClassTextTarget(t *testing.T) {
	records := make([]table.Record, 80)
	for i := range records {
		tier := i % 40
		records[i] = table.Record{"Power": float64(tier) * 10, "Tier": fmt.Sprintf("Tier %d", tier)}
	}
	tbl, err := table.FromRecords(records, "Power", "Tier")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind := tbl.Schema()[1].Kind; kind != table.Text {
		t.Fatalf("expected inferred text target, got %s", kind)
	}

	m, err := NewMachine(tbl, "Tier", WithNEstimators(5), WithRandomState(1), WithBootstrap(false))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(m.Classes()); got != 40 {
		t.Fatalf("expected 40 classes, got %d", got)
	}
	label, _, err := m.PredictRecord(table.Record{"Power": 0.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(label, "Tier ") {
		t.Fatalf("unexpected label %q", label)
	}
}

func TestInfo(t *testing.T) {
	m := trainMachine(t, rarityTable(t, 20))
	info := m.Info()
	if !strings.HasPrefix(info, "Random Forest Classifier model initialized at ") {
		t.Fatalf("unexpected info %q", info)
	}
	if !strings.Contains(info, m.Timestamp.Format("2006-01-02 15:04:05")) {
		t.Fatalf("info should carry the construction timestamp: %q", info)
	}
	if m.Info() != info {
		t.Fatal("info should be stable")
	}
}

func TestMaxDepthLimitsTrees(t *testing.T) {
	m, err := NewMachine(rarityTable(t, 100), "Rarity", WithNEstimators(8), WithMaxDepth(1), WithRandomState(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, tree := range m.model.Trees {
		if tree.MaxDepth != 1 || len(tree.Nodes) > 3 {
			t.Fatalf("tree %d: depth limit %d with %d nodes", i, tree.MaxDepth, len(tree.Nodes))
		}
	}
}

func TestForestProbabilitiesSumToOne(t *testing.T) {
	tbl := rarityTable(t, 100)
	m := trainMachine(t, tbl)
	features, _ := tbl.Drop("Rarity")
	for i := 0; i < features.Len(); i++ {
		row := features.Row(i)
		vec := make([]float64, len(row))
		for j, v := range row {
			vec[j] = v.(float64)
		}
		probs, err := m.model.PredictProba(vec)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		sum := 0.0
		for _, p := range probs {
			sum += p
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("row %d: probabilities sum to %f", i, sum)
		}
	}
}

func TestSameSeedSameForest(t *testing.T) {
	tbl := rarityTable(t, 80)
	a := trainMachine(t, tbl)
	b := trainMachine(t, tbl)
	features, _ := tbl.Drop("Rarity")
	for i := 0; i < features.Len(); i++ {
		row := features.Subset([]int{i})
		la, ca, _ := a.Predict(row)
		lb, cb, _ := b.Predict(row)
		if la != lb || ca != cb {
			t.Fatalf("row %d: (%s, %f) != (%s, %f)", i, la, ca, lb, cb)
		}
	}
}

func TestSplitAndEvaluate(t *testing.T) {
	tbl := rarityTable(t, 200)
	train, test := SplitTable(tbl, 0.25, 9)
	if train.Len() != 150 || test.Len() != 50 {
		t.Fatalf("unexpected split %d/%d", train.Len(), test.Len())
	}
	m := trainMachine(t, train)
	metrics, err := Evaluate(m, test)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.Samples != 50 {
		t.Fatalf("expected 50 samples, got %d", metrics.Samples)
	}
	if metrics.Accuracy < 0.8 {
		t.Fatalf("expected separable data to score well, got %f", metrics.Accuracy)
	}
}
