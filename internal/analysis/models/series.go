package models

import (
	"math"
	"sort"
	"time"
)

// Series é uma série já alinhada à grade: um valor por tick com máscara
// de validade. Tick sem amostra correspondente fica inválido (null);
// nunca se inventa valor por interpolação.
type Series struct {
	Values []float64 `json:"values"`
	Valid  []bool    `json:"valid"`
}

// NewSeries cria uma série vazia (todos os ticks nulos)
func NewSeries(ticks int) *Series {
	return &Series{
		Values: make([]float64, ticks),
		Valid:  make([]bool, ticks),
	}
}

// Len retorna o número de ticks
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Values)
}

// Set registra um valor válido no tick i
func (s *Series) Set(i int, v float64) {
	s.Values[i] = v
	s.Valid[i] = true
}

// At retorna o valor do tick i e se ele é válido
func (s *Series) At(i int) (float64, bool) {
	if s == nil || i < 0 || i >= len(s.Values) || !s.Valid[i] {
		return 0, false
	}
	return s.Values[i], true
}

// ValidCount conta quantos ticks têm valor
func (s *Series) ValidCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, ok := range s.Valid {
		if ok {
			n++
		}
	}
	return n
}

// AlignedSeries agrupa todas as séries de um run na mesma grade uniforme.
// Séries escalares (cluster) ficam indexadas por kind; séries por pod ficam
// indexadas por kind e entity.
type AlignedSeries struct {
	Start   time.Time
	Spacing time.Duration
	Ticks   int

	scalar map[StreamKind]*Series
	entity map[StreamKind]map[string]*Series
}

// NewAlignedSeries cria a grade vazia
func NewAlignedSeries(start time.Time, spacing time.Duration, ticks int) *AlignedSeries {
	return &AlignedSeries{
		Start:   start,
		Spacing: spacing,
		Ticks:   ticks,
		scalar:  make(map[StreamKind]*Series),
		entity:  make(map[StreamKind]map[string]*Series),
	}
}

// TickTime retorna o timestamp do tick i
func (a *AlignedSeries) TickTime(i int) time.Time {
	return a.Start.Add(time.Duration(i) * a.Spacing)
}

// End retorna o timestamp do último tick
func (a *AlignedSeries) End() time.Time {
	return a.TickTime(a.Ticks - 1)
}

// TickAtOrAfter retorna o índice do primeiro tick com timestamp >= t,
// limitado a [0, Ticks]. Ticks significa "depois do fim da grade".
func (a *AlignedSeries) TickAtOrAfter(t time.Time) int {
	if !t.After(a.Start) {
		return 0
	}
	d := t.Sub(a.Start)
	i := int(d / a.Spacing)
	if a.TickTime(i).Before(t) {
		i++
	}
	if i > a.Ticks {
		return a.Ticks
	}
	return i
}

// SetScalar registra a série de cluster de um kind
func (a *AlignedSeries) SetScalar(kind StreamKind, s *Series) {
	a.scalar[kind] = s
}

// Scalar retorna a série de cluster de um kind (nil se ausente)
func (a *AlignedSeries) Scalar(kind StreamKind) *Series {
	return a.scalar[kind]
}

// SetEntity registra a série de uma entidade (pod) de um kind
func (a *AlignedSeries) SetEntity(kind StreamKind, entity string, s *Series) {
	m, ok := a.entity[kind]
	if !ok {
		m = make(map[string]*Series)
		a.entity[kind] = m
	}
	m[entity] = s
}

// EntitySeries retorna a série de uma entidade específica (nil se ausente)
func (a *AlignedSeries) EntitySeries(kind StreamKind, entity string) *Series {
	return a.entity[kind][entity]
}

// EntityNames retorna as entidades de um kind em ordem estável
func (a *AlignedSeries) EntityNames(kind StreamKind) []string {
	m := a.entity[kind]
	if len(m) == 0 {
		return nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has indica se existe qualquer série (escalar ou por entidade) do kind
func (a *AlignedSeries) Has(kind StreamKind) bool {
	if s, ok := a.scalar[kind]; ok && s.ValidCount() > 0 {
		return true
	}
	for _, s := range a.entity[kind] {
		if s.ValidCount() > 0 {
			return true
		}
	}
	return false
}

// Kinds retorna os kinds presentes, em ordem estável
func (a *AlignedSeries) Kinds() []StreamKind {
	seen := make(map[StreamKind]bool)
	for k := range a.scalar {
		seen[k] = true
	}
	for k := range a.entity {
		seen[k] = true
	}
	kinds := make([]StreamKind, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// EntityValues coleta os valores válidos de todas as entidades no tick i
func (a *AlignedSeries) EntityValues(kind StreamKind, i int) []float64 {
	names := a.EntityNames(kind)
	if len(names) == 0 {
		return nil
	}
	vals := make([]float64, 0, len(names))
	for _, name := range names {
		if v, ok := a.entity[kind][name].At(i); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

// AggregateSum soma as entidades por tick. Tick é válido quando ao menos
// uma entidade tem valor nele.
func (a *AlignedSeries) AggregateSum(kind StreamKind) *Series {
	out := NewSeries(a.Ticks)
	for i := 0; i < a.Ticks; i++ {
		vals := a.EntityValues(kind, i)
		if len(vals) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		out.Set(i, sum)
	}
	return out
}

// AggregateMean calcula a média das entidades por tick
func (a *AlignedSeries) AggregateMean(kind StreamKind) *Series {
	out := NewSeries(a.Ticks)
	for i := 0; i < a.Ticks; i++ {
		vals := a.EntityValues(kind, i)
		if len(vals) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		out.Set(i, sum/float64(len(vals)))
	}
	return out
}

// EntityStdDev calcula o desvio padrão amostral (n-1) entre entidades por
// tick. Precisa de pelo menos duas entidades válidas no tick.
func (a *AlignedSeries) EntityStdDev(kind StreamKind) *Series {
	out := NewSeries(a.Ticks)
	for i := 0; i < a.Ticks; i++ {
		vals := a.EntityValues(kind, i)
		if len(vals) < 2 {
			continue
		}
		mean := 0.0
		for _, v := range vals {
			mean += v
		}
		mean /= float64(len(vals))
		ss := 0.0
		for _, v := range vals {
			d := v - mean
			ss += d * d
		}
		out.Set(i, math.Sqrt(ss/float64(len(vals)-1)))
	}
	return out
}
