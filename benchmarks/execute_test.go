package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/stategraph/pkg/stategraph"
)

func BenchmarkInvoke_Linear_5(b *testing.B) {
	benchmarkInvoke(b, mustCompile(b, buildLinearGraph(5)))
}

func BenchmarkInvoke_Linear_50(b *testing.B) {
	benchmarkInvoke(b, mustCompile(b, buildLinearGraph(50)))
}

func BenchmarkInvoke_Branching(b *testing.B) {
	benchmarkInvoke(b, mustCompile(b, buildBranchingGraph()))
}

func BenchmarkInvoke_Loop_10(b *testing.B) {
	benchmarkInvoke(b, mustCompile(b, buildLoopGraph(10)))
}

// BenchmarkStream_FirstOutput measures the cost of pulling a single output
// from a long graph, then abandoning it.
func BenchmarkStream_FirstOutput(b *testing.B) {
	compiled := mustCompile(b, buildLinearGraph(100))
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s := compiled.Stream(ctx, stategraph.ArgsMap(nil), stategraph.RunConfig{})
		if !s.Next() {
			b.Fatal(s.Err())
		}
		s.Close()
	}
}

func benchmarkInvoke(b *testing.B, compiled *stategraph.CompiledGraph) {
	b.Helper()
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := compiled.Invoke(ctx, stategraph.ArgsMap(nil), stategraph.RunConfig{}); err != nil {
			b.Fatal(err)
		}
	}
}
