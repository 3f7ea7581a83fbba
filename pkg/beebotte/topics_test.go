package beebotte

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
)

func TestTopicSetFilters(t *testing.T) {
	tests := []struct {
		name    string
		set     TopicSet
		want    []broker.Filter
		wantErr error
	}{
		{
			name: "single",
			set:  SingleTopic{Name: "a/b", QoS: 1},
			want: []broker.Filter{{Topic: "a/b", QoS: 1}},
		},
		{
			name: "list shares qos",
			set:  TopicList{Names: []string{"a/b", "c/d"}, QoS: 2},
			want: []broker.Filter{{Topic: "a/b", QoS: 2}, {Topic: "c/d", QoS: 2}},
		},
		{
			name: "pairs keep first duplicate",
			set:  TopicQoSList{{Topic: "a/b", QoS: 0}, {Topic: "c/d", QoS: 1}, {Topic: "a/b", QoS: 2}},
			want: []broker.Filter{{Topic: "a/b", QoS: 0}, {Topic: "c/d", QoS: 1}},
		},
		{name: "empty list", set: TopicList{}, wantErr: ErrInvalidTopic},
		{name: "empty pairs", set: TopicQoSList{}, wantErr: ErrInvalidTopic},
		{name: "empty name", set: Topics("a/b", ""), wantErr: ErrInvalidTopic},
		{name: "bad qos", set: TopicQoSList{{Topic: "a/b", QoS: 3}}, wantErr: ErrInvalidQoS},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.set.filters()
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRegistry(t *testing.T) {
	var r registry
	r.add("a", "b", "a", "c")
	assert.Equal(t, []string{"a", "b", "c"}, r.list())
	assert.Equal(t, 3, r.len())
	assert.Equal(t, []string{"c", "a"}, r.intersect([]string{"x", "c", "a"}))
	assert.Empty(t, r.intersect([]string{"x"}))

	r.remove("b")
	r.remove("missing")
	assert.Equal(t, []string{"a", "c"}, r.list())
	assert.True(t, r.contains("c"))
	assert.False(t, r.contains("b"))

	r.clear()
	assert.Equal(t, 0, r.len())
	assert.Empty(t, r.list())
}
