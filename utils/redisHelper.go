package utils

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/mmdatafocus/cella_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

/* generic functions */

// get type name of struct type parameter
func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

/* Redis */

// store instance, obj should be a pointer
func StoreRedis[T any](obj any, id int) error {
	key := GetTypeName[T]() + ":" + fmt.Sprint(id)
	return config.SetRedisObject(key, &obj, GetCacheLifespan())
}

// retrieve instance; nil result means cache miss
func RetrieveRedis[T any](id int) (*T, error) {
	key := GetTypeName[T]() + ":" + fmt.Sprint(id)
	var result T
	exists, err := config.GetRedisObject(key, &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &result, nil
}

// store list of objects under the type name
func StoreRedisList[T any](obj any) error {
	key := GetTypeName[T]() + ":List"
	return config.SetRedisObject(key, &obj, GetCacheLifespan())
}

// retrieve list; nil result means cache miss
func RetrieveRedisList[T any]() ([]*T, error) {
	key := GetTypeName[T]() + ":List"
	var results []*T
	exists, err := config.GetRedisObject(key, &results)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return results, nil
}

// drop both the instance key and the list key for a type
func RemoveRedisBoth[T any](id int) error {
	typeName := GetTypeName[T]()
	if err := config.RemoveRedisKey(typeName + ":" + fmt.Sprint(id)); err != nil {
		return err
	}
	return config.RemoveRedisKey(typeName + ":List")
}

func RemoveRedisList[T any]() error {
	return config.RemoveRedisKey(GetTypeName[T]() + ":List")
}
