package nodeid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestFor_Deterministic(t *testing.T) {
	assert.Equal(t, For(models.TypePage, "42"), For(models.TypePage, "42"))
}

func TestFor_DistinctAcrossTypeTags(t *testing.T) {
	assert.NotEqual(t, For(models.TypePage, "42"), For(models.TypeProduct, "42"))
}

func TestFor_SeparatorCannotCollide(t *testing.T) {
	assert.NotEqual(t, For("a", "b__c"), For("a__b", "c"))
}

func TestForAll_PreservesOrder(t *testing.T) {
	ids := ForAll(models.TypeArticle, []string{"1", "2"})
	assert.Equal(t, []string{For(models.TypeArticle, "1"), For(models.TypeArticle, "2")}, ids)
}
