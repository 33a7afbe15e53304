//go:build ignore

// Generates a synthetic knowledge corpus for ingestion and search
// benchmarks: markdown guides plus Dart service/model/test triples.
// Usage: go run scripts/generate-test-corpus.go -guides 200 -features 50 -output testdata/corpus
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numGuides   = flag.Int("guides", 200, "Number of markdown guides")
	numFeatures = flag.Int("features", 50, "Number of Dart feature triples (service, model, test)")
	outputDir   = flag.String("output", "testdata/corpus", "Output directory")
	seed        = flag.Int64("seed", 42, "Random seed")
)

var topics = []string{
	"state management", "navigation", "dependency injection", "networking",
	"local storage", "authentication", "theming", "animations", "testing",
	"error handling", "pagination", "caching", "localization", "forms",
}

var advice = []string{
	"Prefer scoped providers over global singletons so rebuilds stay local.",
	"Keep widgets small and push logic into services that are easy to test.",
	"Cache responses with an explicit TTL instead of relying on HTTP caching.",
	"Dispose controllers in dispose() to avoid leaking listeners.",
	"Wrap async calls in try/catch and surface typed failures to the UI.",
	"Split route definitions into a single navigator configuration file.",
	"Pin package versions in pubspec.lock and review upgrades deliberately.",
	"Use const constructors wherever the widget tree allows it.",
}

var features = []string{
	"auth", "profile", "settings", "search", "checkout", "catalog",
	"orders", "notifications", "onboarding", "payments", "reviews",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := generate(rng); err != nil {
		fmt.Fprintf(os.Stderr, "generate corpus: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d guides and %d feature triples to %s\n",
		*numGuides, *numFeatures, *outputDir)
}

func generate(rng *rand.Rand) error {
	for i := 0; i < *numGuides; i++ {
		topic := topics[rng.Intn(len(topics))]
		name := fmt.Sprintf("docs/%s-%03d.md", strings.ReplaceAll(topic, " ", "-"), i)
		if err := writeFile(name, guide(rng, topic)); err != nil {
			return err
		}
	}
	for i := 0; i < *numFeatures; i++ {
		feature := fmt.Sprintf("%s%d", features[rng.Intn(len(features))], i)
		if err := writeFile("lib/models/"+feature+".dart", model(feature)); err != nil {
			return err
		}
		if err := writeFile("lib/services/"+feature+"_service.dart", service(feature)); err != nil {
			return err
		}
		if err := writeFile("test/services/"+feature+"_service_test.dart", serviceTest(feature)); err != nil {
			return err
		}
	}
	return nil
}

func guide(rng *rand.Rand, topic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", typeName(topic))
	sections := 2 + rng.Intn(4)
	for i := 0; i < sections; i++ {
		fmt.Fprintf(&b, "## Approach %d\n\n", i+1)
		lines := 2 + rng.Intn(3)
		for j := 0; j < lines; j++ {
			b.WriteString(advice[rng.Intn(len(advice))])
			b.WriteString(" ")
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func model(feature string) string {
	t := typeName(feature)
	return fmt.Sprintf(`class %s {
  final String id;
  final String name;

  %s(this.id, this.name);

  factory %s.fromJson(Map<String, dynamic> json) =>
      %s(json['id'] as String, json['name'] as String);
}
`, t, t, t, t)
}

func service(feature string) string {
	t := typeName(feature)
	return fmt.Sprintf(`import '../models/%s.dart';

class %sService {
  final String baseURL;

  %sService(this.baseURL);

  Future<%s> fetch(String id) async {
    return %s(id, 'stub');
  }

  Future<void> remove(String id) async {}
}
`, feature, t, t, t, t)
}

func serviceTest(feature string) string {
	t := typeName(feature)
	return fmt.Sprintf(`import '../../lib/services/%s_service.dart';

void main() {
  test('fetch returns the requested %s', () async {
    final service = %sService('http://localhost');
    final item = await service.fetch('1');
    expect(item.id, '1');
  });
}
`, feature, feature, t)
}

func typeName(feature string) string {
	return strings.ToUpper(feature[:1]) + feature[1:]
}

func writeFile(rel, content string) error {
	path := filepath.Join(*outputDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
